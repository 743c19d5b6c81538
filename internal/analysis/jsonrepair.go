package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseResult is a decoded model object together with the strategy that produced it.
type ParseResult struct {
	Strategy string
	JSON     []byte
	Object   map[string]any
}

type repairStrategy struct {
	name    string
	prepare func(string) string
}

// repairStrategies run in order against the fence-stripped, bracket-balanced
// candidate. The first one that yields a complete JSON object wins.
var repairStrategies = []repairStrategy{
	{name: "direct", prepare: strings.TrimSpace},
	{name: "sanitized", prepare: sanitizeJSON},
	{name: "aggressive", prepare: func(s string) string { return aggressiveSanitizeJSON(sanitizeJSON(s)) }},
}

var (
	lineBreaks        = regexp.MustCompile(`[\r\n\t]+`)
	repeatedSpaces    = regexp.MustCompile(` {2,}`)
	trailingCommas    = regexp.MustCompile(`,\s*([}\]])`)
	barePropertyNames = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	fenceMarkers      = regexp.MustCompile("```(?:json|JSON)?")
	bareWordKeys      = regexp.MustCompile(`([{,\[\s])([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	smartQuotes       = strings.NewReplacer("“", `"`, "”", `"`)
)

// ParseTolerant decodes model output that is meant to be a JSON object but may be
// fenced, truncated, or sloppily formatted. It either returns a complete object or
// an error wrapping ErrUnparseableResponse.
func ParseTolerant(raw string) (*ParseResult, error) {
	candidate := balanceBrackets(extractJSONCandidate(raw))
	if candidate == "" {
		return nil, fmt.Errorf("%w: no content", ErrUnparseableResponse)
	}

	var lastErr error
	for _, strategy := range repairStrategies {
		text := strategy.prepare(candidate)
		obj, err := decodeObject(text)
		if err != nil {
			lastErr = err
			continue
		}
		return &ParseResult{Strategy: strategy.name, JSON: []byte(text), Object: obj}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, lastErr)
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("top-level value is not an object")
	}
	return obj, nil
}

// extractJSONCandidate returns the interior of the first fenced block (the closing
// fence may be missing when the model was cut off), trimmed to start at the first
// opening brace. Text after the last closing brace is dropped when the object up
// to that brace is complete.
func extractJSONCandidate(raw string) string {
	s := strings.TrimSpace(raw)
	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = strings.TrimSpace(body)
	}
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if end := strings.LastIndexByte(s, '}'); end >= 0 && end < len(s)-1 {
		head := s[:end+1]
		if strings.Count(head, "{") == strings.Count(head, "}") {
			s = head
		}
	}
	return s
}

// balanceBrackets appends the missing closers by straight count difference:
// brackets first, then braces. Characters inside string literals are counted too.
func balanceBrackets(s string) string {
	braces := strings.Count(s, "{") - strings.Count(s, "}")
	brackets := strings.Count(s, "[") - strings.Count(s, "]")
	if braces <= 0 && brackets <= 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	for i := 0; i < brackets; i++ {
		b.WriteByte(']')
	}
	for i := 0; i < braces; i++ {
		b.WriteByte('}')
	}
	return b.String()
}

func sanitizeJSON(s string) string {
	s = lineBreaks.ReplaceAllString(s, " ")
	s = repeatedSpaces.ReplaceAllString(s, " ")
	s = trailingCommas.ReplaceAllString(s, "$1")
	s = barePropertyNames.ReplaceAllString(s, `$1"$2"$3`)
	return strings.TrimSpace(s)
}

func aggressiveSanitizeJSON(s string) string {
	s = fenceMarkers.ReplaceAllString(s, "")
	s = smartQuotes.Replace(s)
	s = bareWordKeys.ReplaceAllString(s, `$1"$2":`)
	s = trailingCommas.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
