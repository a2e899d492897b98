package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chimera/internal/application"
	"chimera/internal/application/extract"
	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/metrics"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

// Options tunes a sync run
type Options struct {
	Workers         int
	MaxFailureRatio float64
	Retry           retry.Policy
	Now             func() time.Time
}

// Engine merges scanned snapshots and extracted relations into the graph
// index. It is the only writer of the index.
type Engine struct {
	scanner   *Scanner
	extractor *extract.Extractor
	llm       ports.LanguageModel
	graph     ports.GraphStore
	cursors   ports.CursorStore
	log       *logger.Logger
	opts      Options
}

// NewEngine wires an engine. cursors may be nil, in which case the caller
// owns persistence of the returned cursor.
func NewEngine(
	scanner *Scanner,
	extractor *extract.Extractor,
	llm ports.LanguageModel,
	graph ports.GraphStore,
	cursors ports.CursorStore,
	log *logger.Logger,
	opts Options,
) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		scanner:   scanner,
		extractor: extractor,
		llm:       llm,
		graph:     graph,
		cursors:   cursors,
		log:       log,
		opts:      opts,
	}
}

// itemOutcome is what processing one item produced
type itemOutcome struct {
	edges          int
	unresolved     int
	embeddingStale bool
}

// Sync runs one reconciliation pass and returns the advanced cursor. On any
// error the returned cursor keeps the previous checkpoints.
func (e *Engine) Sync(ctx context.Context, mode domain.SyncMode, cursor domain.SyncCursor) (domain.SyncCursor, *domain.SyncReport, error) {
	startedAt := e.opts.Now()
	report := &domain.SyncReport{RunID: uuid.NewString(), Mode: mode, StartedAt: startedAt}
	log := e.log.With("run_id", report.RunID, "mode", mode.String())
	next := cursor.Clone()
	next.LastRunAt = startedAt

	fail := func(err error) (domain.SyncCursor, *domain.SyncReport, error) {
		report.Duration = time.Since(startedAt)
		next.LastRunStatus = domain.RunFailed
		e.persist(ctx, next, log)
		metrics.RecordSyncRun(mode.String(), string(domain.RunFailed), report.ItemsUpserted, report.ItemsFailed, report.ItemsDeleted, report.Duration)
		log.Error("sync failed", "error", err.Error(), "duration", report.Duration.String())
		return next, report, err
	}

	log.Info("sync started", "since", cursor.LastIncrementalSyncAt)
	scan, err := e.scanner.Scan(ctx, mode, cursor)
	if err != nil {
		return fail(err)
	}
	report.ItemsScanned = len(scan.Items) + len(scan.Rejected)
	report.ItemsFailed = len(scan.Rejected)
	report.FailedIDs = append(report.FailedIDs, scan.Rejected...)

	if err := e.upsertAll(ctx, scan.Items, report, log); err != nil {
		return fail(err)
	}

	if report.ItemsScanned > 0 && report.FailureRatio() > e.opts.MaxFailureRatio {
		slices.Sort(report.FailedIDs)
		return fail(&application.SyncBatchFailure{
			Mode:      mode.String(),
			Failed:    report.ItemsFailed,
			Total:     report.ItemsScanned,
			MaxRatio:  e.opts.MaxFailureRatio,
			FailedIDs: report.FailedIDs,
		})
	}

	if mode == domain.SyncFull {
		remaining, err := e.removeTombstones(ctx, scan.Observed, &next, report, log)
		if err != nil {
			return fail(err)
		}
		next.DeletionCandidates = remaining
		next.LastFullSyncAt = startedAt
	}
	next.LastIncrementalSyncAt = startedAt

	next.LastRunStatus = domain.RunSucceeded
	if report.ItemsFailed > 0 || len(next.DeletionCandidates) > 0 {
		next.LastRunStatus = domain.RunPartial
	}
	report.Duration = time.Since(startedAt)
	e.persist(ctx, next, log)
	metrics.RecordSyncRun(mode.String(), string(next.LastRunStatus), report.ItemsUpserted, report.ItemsFailed, report.ItemsDeleted, report.Duration)

	log.Info("sync finished",
		"status", string(next.LastRunStatus),
		"scanned", report.ItemsScanned,
		"upserted", report.ItemsUpserted,
		"failed", report.ItemsFailed,
		"deleted", report.ItemsDeleted,
		"edges", report.EdgesWritten,
		"unresolved_refs", report.UnresolvedRefs,
		"duration", report.Duration.String(),
	)
	return next, report, nil
}

// upsertAll processes items on a bounded worker pool. Per-item failures are
// counted, only cancellation aborts the batch.
func (e *Engine) upsertAll(ctx context.Context, items []domain.RawItem, report *domain.SyncReport, log *logger.Logger) error {
	if len(items) == 0 {
		return nil
	}

	existing, err := e.graph.GetItems(ctx, rawIDs(items))
	if err != nil {
		return fmt.Errorf("load indexed items: %w", err)
	}
	resolver, err := e.newResolver(ctx, items)
	if err != nil {
		return fmt.Errorf("resolve references: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range items {
		raw := &items[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := e.syncItem(gctx, raw, existing[raw.ID], resolver)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				report.ItemsFailed++
				report.FailedIDs = append(report.FailedIDs, raw.ID)
				log.Warn("item sync failed", "item_id", raw.ID, "error", err.Error())
				return nil
			}
			report.ItemsUpserted++
			report.EdgesWritten += out.edges
			report.UnresolvedRefs += out.unresolved
			if out.embeddingStale {
				report.EmbeddingsFailed++
			}
			return nil
		})
	}
	return g.Wait()
}

// syncItem embeds, extracts and writes one item inside a single transaction
// so its previous edge set survives any failure
func (e *Engine) syncItem(ctx context.Context, raw *domain.RawItem, prev *domain.IndexedItem, resolver *resolver) (itemOutcome, error) {
	var out itemOutcome
	item := raw.Indexed()

	unchanged := prev != nil && prev.LastModified.Equal(raw.LastModified) && prev.HasEmbedding()
	if !unchanged {
		vec, err := retry.Do(ctx, e.opts.Retry, e.log, "llm.embed", func() ([]float32, error) {
			return e.llm.Embed(ctx, raw.EmbeddingText())
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			e.log.Warn("embedding failed, keeping previous vector", "item_id", raw.ID, "error", err.Error())
			out.embeddingStale = true
		} else {
			item.Embedding = vec
		}
	}

	var rels []domain.Relation
	for _, rel := range e.extractor.Extract(raw) {
		if rel.Kind.NeedsResolution() {
			target, ok := resolver.resolve(rel.Target)
			if !ok || target == raw.ID {
				if !ok {
					out.unresolved++
				}
				continue
			}
			rel.Target = target
		}
		rels = append(rels, rel)
	}
	rels = domain.SortRelations(rels)

	tx, err := e.graph.BeginTx(ctx)
	if err != nil {
		return out, fmt.Errorf("begin tx: %w", err)
	}
	if err := writeItem(ctx, tx, item, rels); err != nil {
		_ = tx.Rollback(ctx)
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("commit %s: %w", raw.ID, err)
	}
	out.edges = len(rels)
	return out, nil
}

func writeItem(ctx context.Context, tx ports.GraphTx, item *domain.IndexedItem, rels []domain.Relation) error {
	if err := tx.UpsertNode(ctx, item); err != nil {
		return fmt.Errorf("upsert node %s: %w", item.ID, err)
	}
	if err := tx.DeleteEdgesFrom(ctx, item.ID); err != nil {
		return fmt.Errorf("delete edges of %s: %w", item.ID, err)
	}
	for _, rel := range rels {
		if err := tx.UpsertEdge(ctx, rel); err != nil {
			return fmt.Errorf("upsert edge %s -%s-> %s: %w", rel.Source, rel.Kind, rel.Target, err)
		}
	}
	return nil
}

// removeTombstones deletes indexed items the full scan did not observe. The
// candidate set is checkpointed before any delete; ids that could not be
// deleted are returned so the next run retries them.
func (e *Engine) removeTombstones(ctx context.Context, observed map[string]bool, next *domain.SyncCursor, report *domain.SyncReport, log *logger.Logger) ([]string, error) {
	indexed, err := e.graph.ListItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed ids: %w", err)
	}

	var candidates []string
	for _, id := range indexed {
		if !observed[id] {
			candidates = append(candidates, id)
		}
	}
	slices.Sort(candidates)

	if len(candidates) > 0 {
		next.DeletionCandidates = candidates
		if err := e.save(ctx, *next); err != nil {
			return nil, fmt.Errorf("checkpoint deletion candidates: %w", err)
		}
		log.Info("deleting tombstoned items", "count", len(candidates))
	}

	var remaining []string
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.deleteItem(ctx, id); err != nil {
			log.Warn("delete failed", "item_id", id, "error", err.Error())
			remaining = append(remaining, id)
			continue
		}
		report.ItemsDeleted++
	}

	pruned, err := e.graph.PruneOrphans(ctx)
	if err != nil {
		log.Warn("orphan pruning failed", "error", err.Error())
	}
	report.OrphansPruned = pruned
	return remaining, nil
}

func (e *Engine) deleteItem(ctx context.Context, id string) error {
	tx, err := e.graph.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.DeleteNode(ctx, id); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (e *Engine) save(ctx context.Context, c domain.SyncCursor) error {
	if e.cursors == nil {
		return nil
	}
	return e.cursors.Save(ctx, c)
}

// persist saves the final cursor; a failure here is logged only, since the
// index writes already happened and the caller still gets the cursor back
func (e *Engine) persist(ctx context.Context, c domain.SyncCursor, log *logger.Logger) {
	if err := e.save(context.WithoutCancel(ctx), c); err != nil {
		log.Error("saving sync cursor failed", "error", err.Error())
	}
}

// resolver maps reference text to item ids, preferring the current batch
// over the index: id match first, then case-insensitive title
type resolver struct {
	batchIDs    map[string]bool
	batchTitles map[string]string
	indexed     map[string]string
}

func (e *Engine) newResolver(ctx context.Context, items []domain.RawItem) (*resolver, error) {
	r := &resolver{
		batchIDs:    make(map[string]bool, len(items)),
		batchTitles: make(map[string]string, len(items)),
	}
	for _, item := range items {
		r.batchIDs[item.ID] = true
		key := strings.ToLower(strings.TrimSpace(item.Title))
		if key == "" {
			continue
		}
		if cur, ok := r.batchTitles[key]; !ok || item.ID < cur {
			r.batchTitles[key] = item.ID
		}
	}

	refs := map[string]bool{}
	for i := range items {
		for _, rel := range e.extractor.Extract(&items[i]) {
			if rel.Kind.NeedsResolution() && !r.batchIDs[rel.Target] {
				refs[rel.Target] = true
			}
		}
	}
	if len(refs) == 0 {
		return r, nil
	}
	list := make([]string, 0, len(refs))
	for ref := range refs {
		list = append(list, ref)
	}
	slices.Sort(list)

	indexed, err := e.graph.ResolveReferences(ctx, list)
	if err != nil {
		return nil, err
	}
	r.indexed = indexed
	return r, nil
}

func (r *resolver) resolve(ref string) (string, bool) {
	if r.batchIDs[ref] {
		return ref, true
	}
	if id, ok := r.indexed[ref]; ok && id == ref {
		return id, true
	}
	if id, ok := r.batchTitles[strings.ToLower(strings.TrimSpace(ref))]; ok {
		return id, true
	}
	id, ok := r.indexed[ref]
	return id, ok
}

func rawIDs(items []domain.RawItem) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}

// IsBatchFailure reports whether err aborted a run for too many item failures
func IsBatchFailure(err error) bool {
	var bf *application.SyncBatchFailure
	return errors.As(err, &bf)
}
