package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chimera/internal/application"
	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/metrics"
)

// PipelineOptions bounds a query
type PipelineOptions struct {
	Timeout      time.Duration
	DefaultLimit int
	MaxLimit     int
}

// Request is one client query. Zero Limit uses the default; a nil
// ConfidenceFloor uses the scorer's floor.
type Request struct {
	Text            string
	ClientID        string
	Limit           int
	ConfidenceFloor *float64
}

// Pipeline chains intent, recall, confidence and assembly. It holds no
// per-query state, so concurrent queries share only the read-only graph.
type Pipeline struct {
	intent    *IntentExtractor
	recall    *Recaller
	scorer    *Scorer
	assembler *Assembler
	log       *logger.Logger
	opts      PipelineOptions
}

// NewPipeline wires the four stages
func NewPipeline(intent *IntentExtractor, recall *Recaller, scorer *Scorer, assembler *Assembler, log *logger.Logger, opts PipelineOptions) *Pipeline {
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &Pipeline{intent: intent, recall: recall, scorer: scorer, assembler: assembler, log: log, opts: opts}
}

// RunQuery answers text for clientID with at most limit entries
func (p *Pipeline) RunQuery(ctx context.Context, text, clientID string, limit int) (*domain.StructuredResult, error) {
	return p.Run(ctx, Request{Text: text, ClientID: clientID, Limit: limit})
}

// Run answers a query. It returns either a ranked, possibly empty result or
// a *application.PipelineError naming the stage that failed. The deadline
// is checked before each stage starts.
func (p *Pipeline) Run(ctx context.Context, req Request) (*domain.StructuredResult, error) {
	if err := application.ValidateRequired("query", req.Text); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = p.opts.DefaultLimit
	}
	if err := application.ValidateIntRange("limit", limit, 1, p.opts.MaxLimit); err != nil {
		return nil, err
	}
	floor := p.scorer.Floor()
	if req.ConfidenceFloor != nil {
		floor = *req.ConfidenceFloor
		if err := application.ValidateFloatRange("confidenceFloor", floor, 0, 1); err != nil {
			return nil, err
		}
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	text := strings.TrimSpace(req.Text)
	res := &domain.StructuredResult{QueryID: uuid.NewString(), ClientID: req.ClientID, Query: text}
	log := p.log.With("query_id", res.QueryID, "client_id", req.ClientID)

	fail := func(stage string, err error) (*domain.StructuredResult, error) {
		metrics.RecordQuery("error")
		log.Warn("query failed", "stage", stage, "error", err.Error())
		return nil, &application.PipelineError{QueryID: res.QueryID, Stage: stage, Err: err}
	}

	// Intent
	if err := ctx.Err(); err != nil {
		return fail(application.StageIntent, err)
	}
	t := time.Now()
	intent, err := p.intent.ExtractIntent(ctx, text)
	metrics.ObserveStage(application.StageIntent, time.Since(t))
	if err != nil {
		return fail(application.StageIntent, err)
	}
	res.Keywords, res.Topics = intent.Keywords, intent.Topics

	// Recall
	if err := ctx.Err(); err != nil {
		return fail(application.StageRecall, err)
	}
	t = time.Now()
	cands, err := p.recall.Recall(ctx, intent, limit)
	metrics.ObserveStage(application.StageRecall, time.Since(t))
	if err != nil {
		return fail(application.StageRecall, err)
	}
	if len(cands) == 0 {
		return p.finish(log, res, start), nil
	}

	// Confidence
	if err := ctx.Err(); err != nil {
		return fail(application.StageConfidence, err)
	}
	t = time.Now()
	cands, res.Degraded = p.scorer.Score(ctx, text, cands, floor)
	metrics.ObserveStage(application.StageConfidence, time.Since(t))
	if len(cands) == 0 {
		return p.finish(log, res, start), nil
	}

	// Assemble
	if err := ctx.Err(); err != nil {
		return fail(application.StageAssemble, err)
	}
	t = time.Now()
	entries, err := p.assembler.Assemble(ctx, cands)
	metrics.ObserveStage(application.StageAssemble, time.Since(t))
	if err != nil {
		return fail(application.StageAssemble, err)
	}
	res.Candidates = entries
	return p.finish(log, res, start), nil
}

func (p *Pipeline) finish(log *logger.Logger, res *domain.StructuredResult, start time.Time) *domain.StructuredResult {
	res.Elapsed = time.Since(start)
	outcome := "ok"
	switch {
	case res.Empty():
		outcome = "empty"
	case res.Degraded:
		outcome = "degraded"
	}
	metrics.RecordQuery(outcome)
	log.Info("query answered", "outcome", outcome, "results", len(res.Candidates), "elapsed", res.Elapsed.String())
	return res
}
