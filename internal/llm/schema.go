package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ExtractJSON strips Markdown code fences and surrounding prose, returning
// the first JSON object in text.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(s, "{") {
		start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
		}
		s = s[start : end+1]
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	return json.RawMessage(s), nil
}

// Validate checks raw against schema.
func Validate(raw json.RawMessage, schema *jsonschema.Schema) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// SchemaFor infers the JSON Schema of T from its json and jsonschema tags.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// Enum restricts a top-level string property to values.
func Enum(schema *jsonschema.Schema, property string, values ...string) {
	prop, ok := schema.Properties[property]
	if !ok {
		return
	}
	prop.Enum = make([]any, len(values))
	for i, v := range values {
		prop.Enum[i] = v
	}
}
