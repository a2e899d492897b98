package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/adapters/memory"
	"chimera/internal/domain"
	"chimera/internal/logger"
)

func TestPolicyDecide(t *testing.T) {
	policy, err := NewPolicy(30*time.Minute, 24*time.Hour, "0 3 * * *")
	require.NoError(t, err)

	lastFull := time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		now      time.Time
		cursor   domain.SyncCursor
		expected domain.SyncMode
	}{
		{
			name:     "no prior full sync",
			now:      lastFull,
			cursor:   domain.SyncCursor{},
			expected: domain.SyncFull,
		},
		{
			name:     "recent full sync",
			now:      lastFull.Add(2 * time.Hour),
			cursor:   domain.SyncCursor{LastFullSyncAt: lastFull},
			expected: domain.SyncIncremental,
		},
		{
			name:     "daily window fired",
			now:      lastFull.Add(23*time.Hour + time.Minute), // 03:01 next day
			cursor:   domain.SyncCursor{LastFullSyncAt: lastFull},
			expected: domain.SyncFull,
		},
		{
			name:     "just before the window",
			now:      lastFull.Add(22*time.Hour + 59*time.Minute),
			cursor:   domain.SyncCursor{LastFullSyncAt: lastFull},
			expected: domain.SyncIncremental,
		},
		{
			name:     "pending deletions",
			now:      lastFull.Add(time.Hour),
			cursor:   domain.SyncCursor{LastFullSyncAt: lastFull, DeletionCandidates: []string{"p2"}},
			expected: domain.SyncFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Decide(tt.now, tt.cursor))
		})
	}
}

func TestPolicyMaxAgeWithoutWindow(t *testing.T) {
	policy, err := NewPolicy(time.Hour, 6*time.Hour, "")
	require.NoError(t, err)

	last := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := domain.SyncCursor{LastFullSyncAt: last}
	assert.Equal(t, domain.SyncIncremental, policy.Decide(last.Add(5*time.Hour), c))
	assert.Equal(t, domain.SyncFull, policy.Decide(last.Add(7*time.Hour), c))
	assert.True(t, policy.NextWindow(last).IsZero())
}

func TestNewPolicyRejectsBadInput(t *testing.T) {
	_, err := NewPolicy(0, time.Hour, "")
	assert.Error(t, err)
	_, err = NewPolicy(time.Minute, time.Hour, "not a cron")
	assert.Error(t, err)
}

// blockingSyncer holds each run until released
type blockingSyncer struct {
	mu      sync.Mutex
	modes   []domain.SyncMode
	started chan struct{}
	release chan struct{}
}

func (b *blockingSyncer) Sync(_ context.Context, mode domain.SyncMode, c domain.SyncCursor) (domain.SyncCursor, *domain.SyncReport, error) {
	b.mu.Lock()
	b.modes = append(b.modes, mode)
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return c, &domain.SyncReport{Mode: mode}, nil
}

func (b *blockingSyncer) seen() []domain.SyncMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.SyncMode(nil), b.modes...)
}

func TestSchedulerDefersFullAndDropsIncremental(t *testing.T) {
	syncer := &blockingSyncer{started: make(chan struct{}, 4), release: make(chan struct{})}
	cursors := &memory.CursorStore{}
	require.NoError(t, cursors.Save(context.Background(), domain.SyncCursor{LastFullSyncAt: time.Now()}))
	policy, err := NewPolicy(time.Hour, 24*time.Hour, "")
	require.NoError(t, err)
	sched := NewScheduler(syncer, cursors, policy, logger.Nop())

	done := make(chan TriggerResult)
	go func() { done <- sched.Trigger(context.Background(), domain.SyncIncremental) }()
	<-syncer.started

	assert.True(t, sched.Status().Running)
	assert.Equal(t, "incremental", sched.Status().ActiveMode)
	assert.Equal(t, TriggerDropped, sched.Trigger(context.Background(), domain.SyncIncremental))
	assert.Equal(t, TriggerDeferred, sched.Trigger(context.Background(), domain.SyncFull))
	assert.True(t, sched.Status().FullDeferred)

	syncer.release <- struct{}{} // finish the incremental run
	<-syncer.started             // deferred full starts right after
	syncer.release <- struct{}{}

	assert.Equal(t, TriggerRan, <-done)
	assert.Equal(t, []domain.SyncMode{domain.SyncIncremental, domain.SyncFull}, syncer.seen())

	st := sched.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Runs)
	assert.Empty(t, st.LastError)
}

func TestSchedulerForcesFullWithoutPriorSync(t *testing.T) {
	syncer := &blockingSyncer{started: make(chan struct{}, 1), release: make(chan struct{}, 1)}
	syncer.release <- struct{}{}
	policy, err := NewPolicy(time.Hour, 0, "")
	require.NoError(t, err)
	sched := NewScheduler(syncer, &memory.CursorStore{}, policy, logger.Nop())

	assert.Equal(t, TriggerRan, sched.Trigger(context.Background(), domain.SyncIncremental))
	assert.Equal(t, []domain.SyncMode{domain.SyncFull}, syncer.seen())
}
