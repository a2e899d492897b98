package reconcile

import (
	"context"
	"sync"
	"time"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

// Syncer is the part of the engine the scheduler drives
type Syncer interface {
	Sync(ctx context.Context, mode domain.SyncMode, cursor domain.SyncCursor) (domain.SyncCursor, *domain.SyncReport, error)
}

// TriggerResult tells a caller what happened to its trigger
type TriggerResult string

const (
	TriggerRan      TriggerResult = "ran"
	TriggerDeferred TriggerResult = "deferred" // Full trigger queued behind the active run
	TriggerDropped  TriggerResult = "dropped"  // Incremental trigger during an active run
)

// SchedulerStatus is a snapshot of the background loop
type SchedulerStatus struct {
	Running      bool
	ActiveMode   string
	FullDeferred bool
	Runs         int
	NextTick     time.Time
	NextWindow   time.Time
	LastReport   *domain.SyncReport
	LastError    string
}

// Scheduler runs sync passes on the policy's cadence with at most one run
// active at a time
type Scheduler struct {
	engine  Syncer
	cursors ports.CursorStore
	policy  *Policy
	log     *logger.Logger
	now     func() time.Time

	mu           sync.Mutex
	running      bool // Run-in-progress flag
	activeMode   domain.SyncMode
	fullDeferred bool
	runs         int
	nextTick     time.Time
	lastReport   *domain.SyncReport
	lastErr      error
}

// NewScheduler creates a scheduler. Call Run to start the loop.
func NewScheduler(engine Syncer, cursors ports.CursorStore, policy *Policy, log *logger.Logger) *Scheduler {
	return &Scheduler{engine: engine, cursors: cursors, policy: policy, log: log, now: time.Now}
}

// Run blocks until ctx is done, triggering a policy-chosen sync immediately
// and then on every interval tick and every full-sync window
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.policy.Interval)
	defer ticker.Stop()

	window := s.windowTimer()
	defer func() {
		if window != nil {
			window.Stop()
		}
	}()

	s.tick(ctx)
	for {
		s.mu.Lock()
		s.nextTick = s.now().Add(s.policy.Interval)
		s.mu.Unlock()

		var windowC <-chan time.Time
		if window != nil {
			windowC = window.C
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-windowC:
			s.Trigger(ctx, domain.SyncFull)
			window = s.windowTimer()
		}
	}
}

func (s *Scheduler) windowTimer() *time.Timer {
	next := s.policy.NextWindow(s.now())
	if next.IsZero() {
		return nil
	}
	return time.NewTimer(next.Sub(s.now()))
}

// tick runs whichever mode the policy picks for the persisted cursor
func (s *Scheduler) tick(ctx context.Context) {
	cursor, err := s.cursors.Load(ctx)
	if err != nil {
		s.log.Error("loading sync cursor failed", "error", err.Error())
		return
	}
	s.Trigger(ctx, s.policy.Decide(s.now(), cursor))
}

// Trigger starts a sync of mode unless one is running. A full trigger
// arriving mid-run is deferred and executed right after the active run; an
// incremental one is dropped.
func (s *Scheduler) Trigger(ctx context.Context, mode domain.SyncMode) TriggerResult {
	s.mu.Lock()
	if s.running {
		defer s.mu.Unlock()
		if mode == domain.SyncFull {
			s.fullDeferred = true
			s.log.Info("full sync deferred behind active run", "active", s.activeMode.String())
			return TriggerDeferred
		}
		s.log.Debug("incremental sync dropped, run in progress")
		return TriggerDropped
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.runOnce(ctx, mode)

		s.mu.Lock()
		s.runs++
		if !s.fullDeferred || ctx.Err() != nil {
			s.running = false
			s.fullDeferred = false
			s.mu.Unlock()
			return TriggerRan
		}
		s.fullDeferred = false
		s.mu.Unlock()
		mode = domain.SyncFull
	}
}

func (s *Scheduler) runOnce(ctx context.Context, mode domain.SyncMode) {
	cursor, err := s.cursors.Load(ctx)
	if err != nil {
		s.record(nil, err)
		s.log.Error("loading sync cursor failed", "error", err.Error())
		return
	}
	if !cursor.HasFullSync() {
		mode = domain.SyncFull
	}

	s.mu.Lock()
	s.activeMode = mode
	s.mu.Unlock()

	_, report, err := s.engine.Sync(ctx, mode, cursor)
	s.record(report, err)
}

func (s *Scheduler) record(report *domain.SyncReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = report
	s.lastErr = err
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		Running:      s.running,
		FullDeferred: s.fullDeferred,
		Runs:         s.runs,
		NextTick:     s.nextTick,
		NextWindow:   s.policy.NextWindow(s.now()),
		LastReport:   s.lastReport,
	}
	if s.running {
		st.ActiveMode = s.activeMode.String()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
