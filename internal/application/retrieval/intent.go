package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chimera/internal/application"
	"chimera/internal/domain"
	"chimera/internal/llmjson"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

// IntentSchema is the output contract of the intent extraction call
var IntentSchema = ports.Schema{
	Name: "query_intent",
	JSON: []byte(`{
  "type": "object",
  "properties": {
    "keywords": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1,
      "maxItems": 5
    },
    "topics": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "maxItems": 5
    }
  },
  "required": ["keywords", "topics"],
  "additionalProperties": false
}`),
}

type intentPayload struct {
	Keywords []string `json:"keywords"`
	Topics   []string `json:"topics"`
}

// IntentExtractor turns free text into keywords and topics with one model
// call, retried once with a stricter instruction
type IntentExtractor struct {
	llm ports.LanguageModel
	log *logger.Logger
}

// NewIntentExtractor creates an intent extractor
func NewIntentExtractor(llm ports.LanguageModel, log *logger.Logger) *IntentExtractor {
	return &IntentExtractor{llm: llm, log: log}
}

// ExtractIntent returns the structured intent of query. Output that never
// passes the schema within the retry budget is an
// *application.IntentParseError; a non-retryable model failure is returned
// wrapped as is. There is no fallback to raw-text search.
func (x *IntentExtractor) ExtractIntent(ctx context.Context, query string) (domain.Intent, error) {
	prompts := []string{buildIntentPrompt(query, false), buildIntentPrompt(query, true)}

	var lastErr error
	for attempt, prompt := range prompts {
		intent, err := x.attempt(ctx, query, prompt)
		if err == nil {
			return intent, nil
		}
		if ctx.Err() != nil {
			return domain.Intent{}, ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, domain.ErrSchemaValidation) && !domain.IsTransient(err) {
			return domain.Intent{}, fmt.Errorf("intent extraction: %w", err)
		}
		x.log.Warn("intent extraction attempt failed", "attempt", attempt+1, "error", err.Error())
	}
	return domain.Intent{}, &application.IntentParseError{Query: query, Attempts: len(prompts), Err: lastErr}
}

func (x *IntentExtractor) attempt(ctx context.Context, query, prompt string) (domain.Intent, error) {
	raw, err := x.llm.Complete(ctx, prompt, IntentSchema)
	if err != nil {
		return domain.Intent{}, err
	}
	doc, err := llmjson.Decode(string(raw), IntentSchema)
	if err != nil {
		return domain.Intent{}, err
	}
	var p intentPayload
	if err := json.Unmarshal(doc, &p); err != nil {
		return domain.Intent{}, &domain.SchemaValidationError{Schema: IntentSchema.Name, Details: []string{err.Error()}, Raw: string(raw)}
	}

	intent := domain.Intent{Query: query, Keywords: cleanTerms(p.Keywords), Topics: cleanTerms(p.Topics)}
	if len(intent.Keywords) == 0 {
		return domain.Intent{}, &domain.SchemaValidationError{Schema: IntentSchema.Name, Details: []string{"keywords: only blank entries"}, Raw: string(raw)}
	}
	return intent, nil
}

// cleanTerms trims, lowercases and dedupes while keeping model order
func cleanTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func buildIntentPrompt(query string, strict bool) string {
	var b strings.Builder
	b.WriteString("You extract search intent from a question about a personal knowledge base.\n\n")
	fmt.Fprintf(&b, "## Question\n%s\n\n", query)
	b.WriteString(`## Task
Return the 1 to 5 most important search keywords and 0 to 5 broader topics.
Keywords are short terms likely to appear in document titles or tags.

## Output Format
{"keywords": ["keyword"], "topics": ["topic"]}
`)
	if strict {
		b.WriteString(`
IMPORTANT: Your previous answer could not be parsed. Respond with ONLY the JSON
object above. No markdown, no code fences, no explanation. "keywords" must hold
between 1 and 5 non-empty strings and "topics" at most 5.
`)
	}
	return b.String()
}
