package commands

import (
	"context"
	"fmt"
	"time"

	"chimera/internal/application/reconcile"
	"chimera/internal/domain"
	"chimera/internal/ports"
)

// StatusReport describes the index and the sync loop
type StatusReport struct {
	Source    string
	Graph     *domain.GraphStats
	Cursor    domain.SyncCursor
	NextMode  domain.SyncMode
	Scheduler *reconcile.SchedulerStatus // nil when no scheduler runs in this process
}

// SchedulerStatuser reports on a running scheduler
type SchedulerStatuser interface {
	Status() reconcile.SchedulerStatus
}

// StatusCommand gathers graph statistics and sync state
type StatusCommand struct {
	source    string
	graph     ports.GraphStore
	cursors   ports.CursorStore
	policy    ModeDecider
	scheduler SchedulerStatuser
}

// NewStatusCommand creates a new StatusCommand. scheduler may be nil.
func NewStatusCommand(source string, graph ports.GraphStore, cursors ports.CursorStore, policy ModeDecider, scheduler SchedulerStatuser) *StatusCommand {
	return &StatusCommand{
		source:    source,
		graph:     graph,
		cursors:   cursors,
		policy:    policy,
		scheduler: scheduler,
	}
}

// Execute collects the report
func (c *StatusCommand) Execute(ctx context.Context) (*StatusReport, error) {
	stats, err := c.graph.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph stats: %w", err)
	}
	cursor, err := c.cursors.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync cursor: %w", err)
	}

	report := &StatusReport{
		Source:   c.source,
		Graph:    stats,
		Cursor:   cursor,
		NextMode: c.policy.Decide(time.Now(), cursor),
	}
	if c.scheduler != nil {
		st := c.scheduler.Status()
		report.Scheduler = &st
	}
	return report, nil
}

// String renders the report as plain text
func (r *StatusReport) String() string {
	var b []byte
	b = fmt.Appendf(b, "source: %s\n", r.Source)
	b = fmt.Appendf(b, "items: %d (%d embedded), tags: %d, placeholders: %d\n",
		r.Graph.Items, r.Graph.Embedded, r.Graph.Tags, r.Graph.Placeholders)
	b = fmt.Appendf(b, "edges: %d", r.Graph.TotalEdges())
	for _, kind := range domain.AllRelationKinds {
		if n := r.Graph.EdgesByKind[kind]; n > 0 {
			b = fmt.Appendf(b, " %s=%d", kind, n)
		}
	}
	b = append(b, '\n')
	b = fmt.Appendf(b, "last full sync: %s\n", formatTime(r.Cursor.LastFullSyncAt))
	b = fmt.Appendf(b, "last incremental sync: %s\n", formatTime(r.Cursor.LastIncrementalSyncAt))
	if r.Cursor.LastRunStatus != domain.RunNever {
		b = fmt.Appendf(b, "last run: %s at %s\n", r.Cursor.LastRunStatus, formatTime(r.Cursor.LastRunAt))
	}
	if n := len(r.Cursor.DeletionCandidates); n > 0 {
		b = fmt.Appendf(b, "pending deletions: %d\n", n)
	}
	b = fmt.Appendf(b, "next sync: %s\n", r.NextMode)
	if s := r.Scheduler; s != nil {
		state := "idle"
		if s.Running {
			state = "running " + s.ActiveMode
		}
		b = fmt.Appendf(b, "scheduler: %s, %d runs, next tick %s, next full window %s\n",
			state, s.Runs, formatTime(s.NextTick), formatTime(s.NextWindow))
		if s.LastError != "" {
			b = fmt.Appendf(b, "last error: %s\n", s.LastError)
		}
	}
	return string(b)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
