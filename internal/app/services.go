package app

import (
	"fmt"

	"chimera/internal/application/extract"
	"chimera/internal/application/reconcile"
	"chimera/internal/application/retrieval"
)

func (a *App) wireServices() error {
	cfg := a.Cfg
	policy, err := reconcile.NewPolicy(cfg.Sync.Interval, cfg.Sync.FullMaxAge, cfg.Sync.FullCron)
	if err != nil {
		return fmt.Errorf("sync policy: %w", err)
	}
	a.Policy = policy

	syncLog := a.Log.With("component", "reconcile")
	a.Engine = reconcile.NewEngine(
		reconcile.NewScanner(a.Source, retryPolicy(cfg), syncLog),
		extract.New(),
		a.LLM,
		a.Graph,
		a.Cursors,
		syncLog,
		reconcile.Options{
			Workers:         cfg.Sync.Workers,
			MaxFailureRatio: cfg.Sync.MaxFailureRatio,
			Retry:           retryPolicy(cfg),
		},
	)
	a.Scheduler = reconcile.NewScheduler(a.Engine, a.Cursors, policy, a.Log.With("component", "scheduler"))

	queryLog := a.Log.With("component", "retrieval")
	a.Pipeline = retrieval.NewPipeline(
		retrieval.NewIntentExtractor(a.LLM, queryLog),
		retrieval.NewRecaller(a.LLM, a.Graph, queryLog, retrieval.RecallOptions{
			Pool:          cfg.Recall.Pool,
			Seeds:         cfg.Recall.Seeds,
			Depth:         cfg.Recall.Depth,
			Decay:         cfg.Recall.Decay,
			MinSimilarity: cfg.Recall.MinSimilarity,
			Retry:         retryPolicy(cfg),
		}),
		retrieval.NewScorer(a.LLM, queryLog, retrieval.ScorerOptions{
			BatchSize: cfg.Confidence.BatchSize,
			Floor:     cfg.Confidence.Floor,
		}),
		retrieval.NewAssembler(a.Source, a.Graph, queryLog, retrieval.AssemblerOptions{
			Workers:      cfg.Assemble.Workers,
			PreviewChars: cfg.Assemble.PreviewChars,
			Retry:        retryPolicy(cfg),
		}),
		queryLog,
		retrieval.PipelineOptions{
			Timeout:      cfg.Query.Timeout,
			DefaultLimit: cfg.Query.DefaultLimit,
			MaxLimit:     cfg.Query.MaxLimit,
		},
	)
	return nil
}
