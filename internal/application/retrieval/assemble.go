package retrieval

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

// Reasons reported when a candidate's content could not be fetched
const (
	ReasonNotFound   = "not found in source"
	ReasonFetchError = "source fetch failed"
)

// AssemblerOptions tunes content assembly
type AssemblerOptions struct {
	Workers      int
	PreviewChars int
	Retry        retry.Policy
}

// Assembler fetches live content and one-hop neighbours for ranked candidates
type Assembler struct {
	source ports.DocumentSource
	graph  ports.GraphStore
	log    *logger.Logger
	opts   AssemblerOptions
}

// NewAssembler creates an assembler
func NewAssembler(source ports.DocumentSource, graph ports.GraphStore, log *logger.Logger, opts AssemblerOptions) *Assembler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PreviewChars < 1 {
		opts.PreviewChars = 500
	}
	return &Assembler{source: source, graph: graph, log: log, opts: opts}
}

// Assemble builds one entry per candidate in the given order. A failed fetch
// yields an entry with ContentAvailable=false instead of dropping it; only
// ctx cancellation fails the call.
func (a *Assembler) Assemble(ctx context.Context, candidates []domain.QueryCandidate) ([]domain.ResultEntry, error) {
	entries := make([]domain.ResultEntry, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, c := range candidates {
		g.Go(func() error {
			entries[i] = a.entry(gctx, c)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *Assembler) entry(ctx context.Context, c domain.QueryCandidate) domain.ResultEntry {
	e := domain.ResultEntry{
		ID:          c.ID,
		Title:       c.Title,
		URL:         c.URL,
		RecallScore: c.RecallScore,
		Tags:        c.Tags,
	}
	if c.Confidence != nil {
		e.Confidence = *c.Confidence
		e.ConfidenceKnown = true
	}

	content, err := retry.Do(ctx, a.opts.Retry, a.log, "fetch content", func() (string, error) {
		return a.source.FetchContent(ctx, c.ID)
	})
	switch {
	case err == nil:
		e.ContentAvailable = true
		e.ContentPreview = Preview(content, a.opts.PreviewChars)
	case errors.Is(err, domain.ErrNotFound):
		e.UnavailableReason = ReasonNotFound
	default:
		a.log.Warn("content fetch failed", "id", c.ID, "error", err.Error())
		e.UnavailableReason = ReasonFetchError
	}

	related, err := a.related(ctx, c.ID)
	if err != nil {
		a.log.Warn("related items lookup failed", "id", c.ID, "error", err.Error())
	}
	e.RelatedItems = related
	return e
}

func (a *Assembler) related(ctx context.Context, id string) ([]domain.RelatedItem, error) {
	hops, err := a.graph.TraverseFrom(ctx, []string{id}, 1, nil)
	if err != nil || len(hops) == 0 {
		return nil, err
	}

	var itemIDs []string
	for _, h := range hops {
		if !domain.IsTagNode(h.ID) {
			itemIDs = append(itemIDs, h.ID)
		}
	}
	items, err := a.graph.GetItems(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RelatedItem, 0, len(hops))
	for _, h := range hops {
		if domain.IsTagNode(h.ID) {
			out = append(out, domain.RelatedItem{ID: h.ID, Title: domain.TagLabel(h.ID), Depth: h.Depth, Kind: domain.RelatedKindTag, Via: h.Via})
			continue
		}
		it, ok := items[h.ID]
		if !ok {
			continue // Unindexed placeholder
		}
		out = append(out, domain.RelatedItem{ID: h.ID, Title: it.Title, Depth: h.Depth, Kind: domain.RelatedKindItem, Via: h.Via})
	}
	return out, nil
}

// Preview cuts s to at most n runes, marking a cut with "..."
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRightFunc(string(r[:n]), unicode.IsSpace) + "..."
}
