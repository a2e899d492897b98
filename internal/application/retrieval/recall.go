package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

// RecallOptions tunes candidate generation
type RecallOptions struct {
	Pool          int     // Similarity hits fetched, independent of limit
	Seeds         int     // Top hits used as traversal seeds
	Depth         int     // Max traversal depth from a seed
	Decay         float64 // Score multiplier per hop
	MinSimilarity float64 // Hits below this never seed or rank directly
	Retry         retry.Policy
}

// DefaultRecallOptions returns the defaults used when config is absent
func DefaultRecallOptions() RecallOptions {
	return RecallOptions{Pool: 50, Seeds: 5, Depth: 2, Decay: 0.5, MinSimilarity: 0.3, Retry: retry.DefaultPolicy()}
}

// Recaller combines vector similarity with graph expansion
type Recaller struct {
	llm   ports.LanguageModel
	graph ports.GraphStore
	log   *logger.Logger
	opts  RecallOptions
}

// NewRecaller creates a recaller
func NewRecaller(llm ports.LanguageModel, graph ports.GraphStore, log *logger.Logger, opts RecallOptions) *Recaller {
	if opts.Pool < 1 {
		opts.Pool = 1
	}
	if opts.Seeds < 1 {
		opts.Seeds = 1
	}
	return &Recaller{llm: llm, graph: graph, log: log, opts: opts}
}

type scored struct {
	score float64
	depth int
}

// Recall returns up to limit candidates ordered by score desc, LastModified
// desc, id asc. Scores do not depend on limit, so a larger limit only
// appends lower-ranked candidates.
func (r *Recaller) Recall(ctx context.Context, intent domain.Intent, limit int) ([]domain.QueryCandidate, error) {
	if limit < 1 {
		return nil, nil
	}

	text := QueryText(intent)
	vec, err := retry.Do(ctx, r.opts.Retry, r.log, "embed query", func() ([]float32, error) {
		return r.llm.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.graph.QueryBySimilarity(ctx, vec, r.opts.Pool)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	best := make(map[string]scored)
	embedded := make(map[string]float64, len(hits))
	items := make(map[string]*domain.IndexedItem, len(hits))
	var seeds []string
	for _, h := range hits {
		if domain.IsTagNode(h.Item.ID) {
			continue
		}
		embedded[h.Item.ID] = h.Score
		item := h.Item
		items[h.Item.ID] = &item
		if h.Score < r.opts.MinSimilarity {
			continue
		}
		best[h.Item.ID] = scored{score: h.Score}
		if len(seeds) < r.opts.Seeds {
			seeds = append(seeds, h.Item.ID)
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	if r.opts.Depth > 0 {
		hops, err := r.graph.TraverseFrom(ctx, seeds, r.opts.Depth, nil)
		if err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		for _, hop := range hops {
			if domain.IsTagNode(hop.ID) {
				continue
			}
			// Hops decay from the seed's own similarity
			s := embedded[hop.Seed] * math.Pow(r.opts.Decay, float64(hop.Depth))
			cur, seen := best[hop.ID]
			if !seen {
				// A pool hit below the floor still competes with its own similarity
				if e, ok := embedded[hop.ID]; ok && e >= s {
					best[hop.ID] = scored{score: e}
					continue
				}
			}
			if !seen || s > cur.score {
				best[hop.ID] = scored{score: s, depth: hop.Depth}
			}
		}
	}

	var missing []string
	for id := range best {
		if _, ok := items[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		found, err := r.graph.GetItems(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load traversed items: %w", err)
		}
		for id, it := range found {
			items[id] = it
		}
	}

	cands := make([]domain.QueryCandidate, 0, len(best))
	for id, s := range best {
		it, ok := items[id]
		if !ok {
			continue // Placeholder: referenced but never synced
		}
		cands = append(cands, domain.QueryCandidate{
			ID:           id,
			Title:        it.Title,
			URL:          it.ExternalURL,
			Tags:         it.Tags,
			LastModified: it.LastModified,
			RecallScore:  s.score,
			Depth:        s.depth,
		})
	}
	domain.SortCandidates(cands)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands, nil
}

// QueryText is the text embedded for a query: the raw query followed by
// its keywords and topics
func QueryText(intent domain.Intent) string {
	parts := []string{intent.Query}
	parts = append(parts, intent.Keywords...)
	parts = append(parts, intent.Topics...)
	return strings.Join(parts, "\n")
}
