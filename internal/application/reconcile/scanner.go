package reconcile

import (
	"context"
	"fmt"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

// Scanner pulls metadata snapshots from the external source. It never
// touches the index.
type Scanner struct {
	source ports.DocumentSource
	policy retry.Policy
	log    *logger.Logger
}

// ScanResult is the outcome of one scan
type ScanResult struct {
	Items    []domain.RawItem
	Observed map[string]bool // Every id the source returned, valid or not
	Rejected []string        // Ids that failed validation
}

// NewScanner creates a scanner over source
func NewScanner(source ports.DocumentSource, policy retry.Policy, log *logger.Logger) *Scanner {
	return &Scanner{source: source, policy: policy, log: log}
}

// Scan lists the items a run of mode has to process. Incremental scans
// return whatever the source reports as changed since the cursor's
// incremental checkpoint; the source applies its own timestamp precision, so
// items at or before the checkpoint are kept and reprocessed idempotently.
// Duplicate ids keep the most recently modified snapshot.
func (s *Scanner) Scan(ctx context.Context, mode domain.SyncMode, cursor domain.SyncCursor) (*ScanResult, error) {
	var (
		raw []domain.RawItem
		err error
	)
	switch mode {
	case domain.SyncFull:
		raw, err = retry.Do(ctx, s.policy, s.log, "source.list_all", func() ([]domain.RawItem, error) {
			return s.source.ListAll(ctx)
		})
	default:
		since := cursor.LastIncrementalSyncAt
		raw, err = retry.Do(ctx, s.policy, s.log, "source.list_changed", func() ([]domain.RawItem, error) {
			return s.source.ListChangedSince(ctx, since)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.source.Name(), err)
	}

	res := &ScanResult{Observed: make(map[string]bool, len(raw))}
	index := make(map[string]int, len(raw))
	for _, item := range raw {
		if item.ID != "" {
			res.Observed[item.ID] = true
		}
		if err := item.Validate(); err != nil {
			s.log.Warn("skipping invalid item", "item_id", item.ID, "error", err.Error())
			res.Rejected = append(res.Rejected, item.ID)
			continue
		}
		if i, seen := index[item.ID]; seen {
			if item.LastModified.After(res.Items[i].LastModified) {
				res.Items[i] = item
			}
			continue
		}
		index[item.ID] = len(res.Items)
		res.Items = append(res.Items, item)
	}
	return res, nil
}
