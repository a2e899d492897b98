package reconcile

import (
	"fmt"
	"time"

	"github.com/robfig/cron"

	"chimera/internal/domain"
)

// Policy decides which sync mode a scheduled trigger runs
type Policy struct {
	Interval   time.Duration // Incremental cadence
	FullMaxAge time.Duration // Force a full sync once the last one is this old
	window     cron.Schedule // Daily full-sync window
}

// NewPolicy parses the full-sync window as a standard 5-field cron spec
func NewPolicy(interval, fullMaxAge time.Duration, fullCron string) (*Policy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}
	p := &Policy{Interval: interval, FullMaxAge: fullMaxAge}
	if fullCron != "" {
		sched, err := cron.ParseStandard(fullCron)
		if err != nil {
			return nil, fmt.Errorf("parse full sync window %q: %w", fullCron, err)
		}
		p.window = sched
	}
	return p, nil
}

// Decide returns full when no full sync ever completed, when deletions from
// an interrupted full run are pending, when the last full sync is older
// than FullMaxAge, or when the daily window has fired since it. Otherwise
// incremental.
func (p *Policy) Decide(now time.Time, c domain.SyncCursor) domain.SyncMode {
	switch {
	case !c.HasFullSync():
		return domain.SyncFull
	case len(c.DeletionCandidates) > 0:
		return domain.SyncFull
	case p.FullMaxAge > 0 && now.Sub(c.LastFullSyncAt) > p.FullMaxAge:
		return domain.SyncFull
	case p.window != nil && !p.window.Next(c.LastFullSyncAt).After(now):
		return domain.SyncFull
	}
	return domain.SyncIncremental
}

// NextWindow returns the next time the full-sync window fires after t, or
// the zero time when no window is configured
func (p *Policy) NextWindow(t time.Time) time.Time {
	if p.window == nil {
		return time.Time{}
	}
	return p.window.Next(t)
}
