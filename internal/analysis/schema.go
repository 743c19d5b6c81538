package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// OutputSchema describes the analysis document returned to clients, with all
// definitions inlined. Every field is optional because tiers strip sections.
func OutputSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&ChatAnalysis{})
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return m, nil
}
