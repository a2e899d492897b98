package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/kaptinlin/jsonschema"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

var (
	compiledMu sync.Mutex
	compiled   = map[string]*jsonschema.Schema{}
)

// Decode turns raw model text into a document that satisfies schema.
// Code fences and prose around the JSON are stripped and near-JSON is
// repaired before validation. Any failure is a *domain.SchemaValidationError.
func Decode(raw string, schema ports.Schema) (json.RawMessage, error) {
	text := ExtractJSON(raw)
	if text == "" {
		return nil, &domain.SchemaValidationError{Schema: schema.Name, Details: []string{"no JSON found in output"}, Raw: raw}
	}

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, &domain.SchemaValidationError{Schema: schema.Name, Details: []string{err.Error()}, Raw: raw}
		}
		if err := json.Unmarshal([]byte(repaired), &data); err != nil {
			return nil, &domain.SchemaValidationError{Schema: schema.Name, Details: []string{err.Error()}, Raw: raw}
		}
		text = repaired
	}

	if err := Validate(schema, data); err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

// Validate checks an already decoded document against schema
func Validate(schema ports.Schema, data any) error {
	s, err := compile(schema)
	if err != nil {
		return err
	}
	result := s.Validate(data)
	if result.IsValid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors))
	for field, e := range result.Errors {
		details = append(details, fmt.Sprintf("%s: %s", field, e.Message))
	}
	slices.Sort(details)
	return &domain.SchemaValidationError{Schema: schema.Name, Details: details}
}

// ExtractJSON pulls the JSON document out of model output that may be
// wrapped in a markdown code block or surrounded by prose
func ExtractJSON(output string) string {
	output = strings.TrimSpace(output)
	if matches := codeBlockRe.FindStringSubmatch(output); len(matches) > 1 {
		output = strings.TrimSpace(matches[1])
	}

	start := strings.IndexAny(output, "{[")
	if start == -1 {
		return ""
	}
	closer := "}"
	if output[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(output, closer)
	if end < start {
		// Truncated output, let the repair step try to close it
		return output[start:]
	}
	return output[start : end+1]
}

func compile(schema ports.Schema) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[schema.Name]; ok {
		return s, nil
	}
	s, err := jsonschema.NewCompiler().Compile(schema.JSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", schema.Name, err)
	}
	compiled[schema.Name] = s
	return s, nil
}
