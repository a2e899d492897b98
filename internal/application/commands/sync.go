package commands

import (
	"context"
	"fmt"
	"time"

	"chimera/internal/application"
	"chimera/internal/application/reconcile"
	"chimera/internal/domain"
	"chimera/internal/ports"
)

// ModeAuto lets the policy pick incremental or full
const ModeAuto = "auto"

// TriggerStarted is the outcome of an async trigger handed to an idle scheduler
const TriggerStarted reconcile.TriggerResult = "started"

// SyncTrigger starts sync runs and reports on them
type SyncTrigger interface {
	Trigger(ctx context.Context, mode domain.SyncMode) reconcile.TriggerResult
	Status() reconcile.SchedulerStatus
}

// ModeDecider picks a sync mode from the stored cursor
type ModeDecider interface {
	Decide(now time.Time, c domain.SyncCursor) domain.SyncMode
}

// SyncResult contains the result of a sync trigger
type SyncResult struct {
	Mode    domain.SyncMode
	Outcome reconcile.TriggerResult
	Report  *domain.SyncReport // Set when the run finished before Execute returned
	Message string
}

// SyncCommand triggers one reconciliation run
type SyncCommand struct {
	trigger SyncTrigger
	policy  ModeDecider
	cursors ports.CursorStore
	Mode    string
	Async   bool
}

// NewSyncCommand creates a new SyncCommand. mode is auto, incremental or full.
func NewSyncCommand(trigger SyncTrigger, policy ModeDecider, cursors ports.CursorStore, mode string) *SyncCommand {
	return &SyncCommand{
		trigger: trigger,
		policy:  policy,
		cursors: cursors,
		Mode:    mode,
	}
}

// Validate checks the requested mode
func (c *SyncCommand) Validate() error {
	if c.Mode == "" || c.Mode == ModeAuto {
		return nil
	}
	_, err := application.ParseSyncMode(c.Mode)
	return err
}

// Execute resolves the mode and triggers the run. A synchronous run
// returns its report; a run that ends in error returns that error after
// the result. An async trigger returns as soon as the run has been handed
// to the scheduler; a full trigger during an active run is still queued.
func (c *SyncCommand) Execute(ctx context.Context) (*SyncResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	mode, err := c.resolveMode(ctx)
	if err != nil {
		return nil, err
	}

	if c.Async {
		st := c.trigger.Status()
		go c.trigger.Trigger(context.WithoutCancel(ctx), mode)
		if st.Running {
			return c.busy(mode, st), nil
		}
		return &SyncResult{Mode: mode, Outcome: TriggerStarted, Message: fmt.Sprintf("%s sync started", mode)}, nil
	}

	outcome := c.trigger.Trigger(ctx, mode)
	if outcome != reconcile.TriggerRan {
		return c.busy(mode, c.trigger.Status()), nil
	}

	st := c.trigger.Status()
	result := &SyncResult{Mode: mode, Outcome: outcome, Report: st.LastReport}
	if st.LastError != "" {
		result.Message = fmt.Sprintf("%s sync failed: %s", mode, st.LastError)
		return result, fmt.Errorf("%w: %s", application.ErrSyncFailed, st.LastError)
	}
	result.Message = FormatReport(st.LastReport)
	return result, nil
}

func (c *SyncCommand) resolveMode(ctx context.Context) (domain.SyncMode, error) {
	if c.Mode != "" && c.Mode != ModeAuto {
		return application.ParseSyncMode(c.Mode)
	}
	cursor, err := c.cursors.Load(ctx)
	if err != nil {
		return domain.SyncIncremental, fmt.Errorf("load sync cursor: %w", err)
	}
	return c.policy.Decide(time.Now(), cursor), nil
}

func (c *SyncCommand) busy(mode domain.SyncMode, st reconcile.SchedulerStatus) *SyncResult {
	if mode == domain.SyncFull {
		return &SyncResult{
			Mode:    mode,
			Outcome: reconcile.TriggerDeferred,
			Message: fmt.Sprintf("full sync queued behind the active %s run", st.ActiveMode),
		}
	}
	return &SyncResult{
		Mode:    mode,
		Outcome: reconcile.TriggerDropped,
		Message: fmt.Sprintf("incremental sync skipped, a %s run is in progress", st.ActiveMode),
	}
}

// FormatReport renders a one-line summary of a finished run
func FormatReport(r *domain.SyncReport) string {
	if r == nil {
		return "no sync report"
	}
	return fmt.Sprintf("%s sync %s: %d scanned, %d upserted, %d failed, %d deleted, %d edges, %d orphans pruned in %s",
		r.Mode, r.RunID, r.ItemsScanned, r.ItemsUpserted, r.ItemsFailed, r.ItemsDeleted,
		r.EdgesWritten, r.OrphansPruned, r.Duration.Round(time.Millisecond))
}
