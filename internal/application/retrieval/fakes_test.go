package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chimera/internal/adapters/memory"
	"chimera/internal/domain"
	"chimera/internal/ports"
)

// scriptedLLM returns canned completions per schema, in order; the last
// one repeats. Embed always returns queryVec.
type scriptedLLM struct {
	mu        sync.Mutex
	queryVec  []float32
	embedErr  error
	responses map[string][]string
	errs      map[string]error
	prompts   map[string][]string
}

func newScriptedLLM(queryVec []float32) *scriptedLLM {
	return &scriptedLLM{
		queryVec:  queryVec,
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		prompts:   make(map[string][]string),
	}
}

func (l *scriptedLLM) respond(schema string, outputs ...string) *scriptedLLM {
	l.responses[schema] = outputs
	return l
}

func (l *scriptedLLM) fail(schema string, err error) *scriptedLLM {
	l.errs[schema] = err
	return l
}

func (l *scriptedLLM) calls(schema string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts[schema])
}

func (l *scriptedLLM) prompt(schema string, i int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prompts[schema][i]
}

func (l *scriptedLLM) Embed(ctx context.Context, _ string) ([]float32, error) {
	if l.embedErr != nil {
		return nil, l.embedErr
	}
	return l.queryVec, ctx.Err()
}

func (l *scriptedLLM) Complete(_ context.Context, prompt string, schema ports.Schema) (json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts[schema.Name] = append(l.prompts[schema.Name], prompt)
	if err := l.errs[schema.Name]; err != nil {
		return nil, err
	}
	outs := l.responses[schema.Name]
	if len(outs) == 0 {
		return json.RawMessage(`{}`), nil
	}
	i := min(len(l.prompts[schema.Name])-1, len(outs)-1)
	return json.RawMessage(outs[i]), nil
}

var _ ports.LanguageModel = (*scriptedLLM)(nil)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// unit returns a 2-d unit vector whose cosine with (1, 0) is cos
func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

var queryVec = []float32{1, 0}

// seed writes items and their relations into a fresh memory graph
func seed(t *testing.T, items []domain.IndexedItem, rels ...domain.Relation) *memory.Graph {
	t.Helper()
	g := memory.NewGraph()
	ctx := context.Background()
	tx, err := g.BeginTx(ctx)
	require.NoError(t, err)
	for i := range items {
		require.NoError(t, tx.UpsertNode(ctx, &items[i]))
	}
	for _, r := range rels {
		require.NoError(t, tx.UpsertEdge(ctx, r))
	}
	require.NoError(t, tx.Commit(ctx))
	return g
}

// resumeCorpus is P1 "Resume" and P2 "Company Bio", both tagged career
func resumeCorpus(t *testing.T) *memory.Graph {
	return seed(t,
		[]domain.IndexedItem{
			{ID: "p1", Title: "Resume", Kind: domain.KindLeaf, Tags: []string{"career"}, Embedding: unit(0.91), LastModified: t0, ExternalURL: "https://notion.so/p1"},
			{ID: "p2", Title: "Company Bio", Kind: domain.KindLeaf, Tags: []string{"career"}, Embedding: unit(0.40), LastModified: t0, ExternalURL: "https://notion.so/p2"},
		},
		domain.Relation{Kind: domain.RelHasTag, Source: "p1", Target: domain.TagNodeID("career")},
		domain.Relation{Kind: domain.RelHasTag, Source: "p2", Target: domain.TagNodeID("career")},
	)
}

func resumeSource() *memory.Source {
	return memory.NewSource(
		domain.RawItem{ID: "p1", Title: "Resume", Body: "Ten years of backend engineering.", LastModified: t0},
		domain.RawItem{ID: "p2", Title: "Company Bio", Body: "We build tools.", LastModified: t0},
	)
}
