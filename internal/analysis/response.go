package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

var (
	// ErrEmptyResponse means the provider returned no content blocks.
	ErrEmptyResponse = errors.New("empty response content")
	// ErrUnexpectedFormat means the first content block is not usable text.
	ErrUnexpectedFormat = errors.New("unexpected response format")
	// ErrUnparseableResponse means no repair strategy produced a JSON object.
	ErrUnparseableResponse = errors.New("unparseable model response")
)

// ExtractText returns the text of the first content block.
// It fails with ErrEmptyResponse or ErrUnexpectedFormat only.
func ExtractText(blocks []anthropic.ContentBlock) (string, error) {
	if len(blocks) == 0 {
		return "", ErrEmptyResponse
	}

	first := blocks[0]
	if first.Type != "text" {
		return "", fmt.Errorf("%w: first block has type %q", ErrUnexpectedFormat, first.Type)
	}

	raw := bytes.TrimSpace(first.Text)
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: text field is not a string", ErrUnexpectedFormat)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedFormat, err)
	}
	return text, nil
}
