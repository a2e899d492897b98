package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"chimera/internal/domain"
	"chimera/internal/llmjson"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

// ConfidenceSchema is the output contract of one scoring batch
var ConfidenceSchema = ports.Schema{
	Name: "candidate_confidence",
	JSON: []byte(`{
  "type": "object",
  "properties": {
    "scores": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["id", "confidence"]
      }
    }
  },
  "required": ["scores"]
}`),
}

type confidencePayload struct {
	Scores []struct {
		ID         string  `json:"id"`
		Confidence float64 `json:"confidence"`
	} `json:"scores"`
}

// ScorerOptions tunes the confidence stage
type ScorerOptions struct {
	BatchSize int
	Floor     float64
}

// Scorer asks the language model how well each candidate answers the query
type Scorer struct {
	llm  ports.LanguageModel
	log  *logger.Logger
	opts ScorerOptions
}

// NewScorer creates a confidence scorer
func NewScorer(llm ports.LanguageModel, log *logger.Logger, opts ScorerOptions) *Scorer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	return &Scorer{llm: llm, log: log, opts: opts}
}

// Floor returns the default confidence floor
func (s *Scorer) Floor() float64 { return s.opts.Floor }

// Score attaches a confidence to every candidate, drops those under floor
// and orders the rest by confidence desc with ties in recall order.
//
// When any batch still fails after its retry the stage degrades: the input
// is returned unchanged, unscored, with degraded set.
func (s *Scorer) Score(ctx context.Context, query string, candidates []domain.QueryCandidate, floor float64) (out []domain.QueryCandidate, degraded bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	conf := make(map[string]float64, len(candidates))
	for batch := range slices.Chunk(candidates, s.opts.BatchSize) {
		scores, err := s.scoreBatch(ctx, query, batch)
		if err != nil {
			s.log.Warn("confidence scoring degraded to recall order", "query", query, "batch_size", len(batch), "error", err.Error())
			return candidates, true
		}
		for id, c := range scores {
			conf[id] = c
		}
	}

	out = make([]domain.QueryCandidate, 0, len(candidates))
	for _, c := range candidates {
		v := conf[c.ID]
		if v < floor {
			continue
		}
		c.Confidence = &v
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b domain.QueryCandidate) int {
		switch {
		case *a.Confidence > *b.Confidence:
			return -1
		case *a.Confidence < *b.Confidence:
			return 1
		default:
			return 0
		}
	})
	return out, false
}

func (s *Scorer) scoreBatch(ctx context.Context, query string, batch []domain.QueryCandidate) (map[string]float64, error) {
	var lastErr error
	for _, strict := range []bool{false, true} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores, err := s.attempt(ctx, buildConfidencePrompt(query, batch, strict), batch)
		if err == nil {
			return scores, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Scorer) attempt(ctx context.Context, prompt string, batch []domain.QueryCandidate) (map[string]float64, error) {
	raw, err := s.llm.Complete(ctx, prompt, ConfidenceSchema)
	if err != nil {
		return nil, err
	}
	doc, err := llmjson.Decode(string(raw), ConfidenceSchema)
	if err != nil {
		return nil, err
	}
	var p confidencePayload
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, &domain.SchemaValidationError{Schema: ConfidenceSchema.Name, Details: []string{err.Error()}, Raw: string(raw)}
	}

	want := make(map[string]bool, len(batch))
	for _, c := range batch {
		want[c.ID] = true
	}
	scores := make(map[string]float64, len(batch))
	for _, sc := range p.Scores {
		if want[sc.ID] {
			scores[sc.ID] = sc.Confidence
		}
	}
	var missing []string
	for _, c := range batch {
		if _, ok := scores[c.ID]; !ok {
			missing = append(missing, "missing score for "+c.ID)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaValidationError{Schema: ConfidenceSchema.Name, Details: missing, Raw: string(raw)}
	}
	return scores, nil
}

func buildConfidencePrompt(query string, batch []domain.QueryCandidate, strict bool) string {
	var b strings.Builder
	b.WriteString("You judge how likely each document answers a question about a personal knowledge base.\n\n")
	fmt.Fprintf(&b, "## Question\n%s\n\n## Documents\n", query)
	for _, c := range batch {
		fmt.Fprintf(&b, "- id: %s | title: %s", c.ID, c.Title)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, " | tags: %s", strings.Join(c.Tags, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
## Task
Give every document a confidence between 0 and 1 that it is relevant.

## Output Format
{"scores": [{"id": "document id", "confidence": 0.0}]}
`)
	if strict {
		fmt.Fprintf(&b, `
IMPORTANT: Your previous answer could not be used. Respond with ONLY the JSON
object above, with exactly one entry for each of these %d ids, copied verbatim.
No markdown, no commentary.
`, len(batch))
	}
	return b.String()
}
