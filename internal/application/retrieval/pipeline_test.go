package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/application"
	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

const resumeScores = `{"scores": [{"id": "p1", "confidence": 0.95}, {"id": "p2", "confidence": 0.2}]}`

func newTestPipeline(llm *scriptedLLM, g ports.GraphStore, src ports.DocumentSource) *Pipeline {
	log := logger.Nop()
	return NewPipeline(
		NewIntentExtractor(llm, log),
		newTestRecaller(llm, g),
		NewScorer(llm, log, ScorerOptions{BatchSize: 10, Floor: 0.5}),
		NewAssembler(src, g, log, AssemblerOptions{Workers: 4, PreviewChars: 200}),
		log,
		PipelineOptions{Timeout: 5 * time.Second, DefaultLimit: 10, MaxLimit: 50},
	)
}

func TestRunQueryScenarioC(t *testing.T) {
	llm := newScriptedLLM(queryVec).
		respond(IntentSchema.Name, `{"keywords": ["resume", "career"], "topics": []}`).
		respond(ConfidenceSchema.Name, resumeScores)
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	res, err := p.RunQuery(context.Background(), "show my resume", "cli", 10)
	require.NoError(t, err)

	assert.NotEmpty(t, res.QueryID)
	assert.Equal(t, "cli", res.ClientID)
	assert.Equal(t, []string{"resume", "career"}, res.Keywords)
	assert.False(t, res.Degraded)
	require.Len(t, res.Candidates, 1)

	p1 := res.Candidates[0]
	assert.Equal(t, "p1", p1.ID)
	assert.Equal(t, "Resume", p1.Title)
	assert.Equal(t, "https://notion.so/p1", p1.URL)
	assert.True(t, p1.ConfidenceKnown)
	assert.InDelta(t, 0.95, p1.Confidence, 1e-9)
	assert.Equal(t, []string{"career"}, p1.Tags)
	assert.True(t, p1.ContentAvailable)
	assert.Equal(t, "Ten years of backend engineering.", p1.ContentPreview)
	assert.Equal(t, []domain.RelatedItem{
		{ID: domain.TagNodeID("career"), Title: "career", Depth: 1, Kind: domain.RelatedKindTag, Via: domain.RelHasTag},
	}, p1.RelatedItems)
}

func TestRunQueryFloorOverride(t *testing.T) {
	llm := newScriptedLLM(queryVec).
		respond(IntentSchema.Name, resumeIntent).
		respond(ConfidenceSchema.Name, resumeScores)
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	floor := 0.1
	res, err := p.Run(context.Background(), Request{Text: "show my resume", Limit: 5, ConfidenceFloor: &floor})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "p1", res.Candidates[0].ID)
	assert.Equal(t, "p2", res.Candidates[1].ID)
}

func TestRunQueryDegradesWhenScoringFails(t *testing.T) {
	llm := newScriptedLLM(queryVec).
		respond(IntentSchema.Name, resumeIntent).
		fail(ConfidenceSchema.Name, errors.New("model overloaded"))
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	res, err := p.RunQuery(context.Background(), "show my resume", "mcp", 10)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "p1", res.Candidates[0].ID)
	assert.Equal(t, "p2", res.Candidates[1].ID)
	for _, c := range res.Candidates {
		assert.False(t, c.ConfidenceKnown)
		assert.True(t, c.ContentAvailable)
	}
}

func TestRunQueryScenarioD(t *testing.T) {
	llm := newScriptedLLM(queryVec).
		respond(IntentSchema.Name, resumeIntent).
		respond(ConfidenceSchema.Name, `{"scores": [{"id": "p1", "confidence": 0.95}, {"id": "p2", "confidence": 0.7}]}`)
	src := resumeSource()
	src.FailFetch("p1", &domain.NotFoundError{ID: "p1"})
	p := newTestPipeline(llm, resumeCorpus(t), src)

	res, err := p.RunQuery(context.Background(), "show my resume", "cli", 10)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)

	assert.Equal(t, "p1", res.Candidates[0].ID)
	assert.False(t, res.Candidates[0].ContentAvailable)
	assert.Equal(t, ReasonNotFound, res.Candidates[0].UnavailableReason)
	assert.Equal(t, "p2", res.Candidates[1].ID)
	assert.True(t, res.Candidates[1].ContentAvailable)
}

func TestRunQueryNothingMatched(t *testing.T) {
	g := seed(t, []domain.IndexedItem{{ID: "x", Title: "Recipes", Embedding: unit(0.05), LastModified: t0}})
	llm := newScriptedLLM(queryVec).respond(IntentSchema.Name, resumeIntent)
	p := newTestPipeline(llm, g, resumeSource())

	res, err := p.RunQuery(context.Background(), "show my resume", "cli", 10)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 0, llm.calls(ConfidenceSchema.Name))
}

func TestRunQueryIntentFailureIsPipelineError(t *testing.T) {
	llm := newScriptedLLM(queryVec).respond(IntentSchema.Name, "no idea")
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	res, err := p.RunQuery(context.Background(), "show my resume", "cli", 10)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrPipeline)
	assert.ErrorIs(t, err, application.ErrIntentParse)

	var pe *application.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, application.StageIntent, pe.Stage)
	assert.NotEmpty(t, pe.QueryID)
}

func TestRunQueryRecallFailureIsPipelineError(t *testing.T) {
	llm := newScriptedLLM(queryVec).respond(IntentSchema.Name, resumeIntent)
	llm.embedErr = errors.New("embedding endpoint down")
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	_, err := p.RunQuery(context.Background(), "show my resume", "cli", 10)
	var pe *application.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, application.StageRecall, pe.Stage)
}

func TestRunQueryCancelledBeforeStart(t *testing.T) {
	llm := newScriptedLLM(queryVec).respond(IntentSchema.Name, resumeIntent)
	p := newTestPipeline(llm, resumeCorpus(t), resumeSource())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.RunQuery(ctx, "show my resume", "cli", 10)

	var pe *application.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, application.StageIntent, pe.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, llm.calls(IntentSchema.Name))
}

func TestRunQueryValidation(t *testing.T) {
	p := newTestPipeline(newScriptedLLM(queryVec), resumeCorpus(t), resumeSource())
	bad := 1.5

	tests := []struct {
		name string
		req  Request
	}{
		{"empty text", Request{Text: "   "}},
		{"limit too large", Request{Text: "q", Limit: 51}},
		{"negative limit", Request{Text: "q", Limit: -1}},
		{"floor out of range", Request{Text: "q", ConfidenceFloor: &bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, application.ErrInvalidArgument)
		})
	}
}
