package domain

import (
	"slices"
	"time"
)

// SyncMode selects how much of the external source a sync run covers
type SyncMode int

const (
	SyncIncremental SyncMode = iota // Items changed since the last checkpoint, never deletes
	SyncFull                        // Entire corpus, the only mode that removes tombstones
)

func (m SyncMode) String() string {
	if m == SyncFull {
		return "full"
	}
	return "incremental"
}

// ParseSyncMode converts "full" / "incremental" into a SyncMode
func ParseSyncMode(s string) (SyncMode, bool) {
	switch s {
	case "full":
		return SyncFull, true
	case "incremental", "inc":
		return SyncIncremental, true
	}
	return SyncIncremental, false
}

// RunStatus is the outcome of the most recent sync run
type RunStatus string

const (
	RunNever     RunStatus = ""
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial" // Some items failed, below the failure ratio
	RunFailed    RunStatus = "failed"
)

// SyncCursor is the reconciliation checkpoint. It is passed into and
// returned from the engine explicitly and persisted by a CursorStore.
// The zero value forces a full sync.
type SyncCursor struct {
	LastFullSyncAt        time.Time `json:"last_full_sync_at"`
	LastIncrementalSyncAt time.Time `json:"last_incremental_sync_at"`
	DeletionCandidates    []string  `json:"deletion_candidates,omitempty"` // In-flight tombstone set of the current full run
	LastRunStatus         RunStatus `json:"last_run_status,omitempty"`
	LastRunAt             time.Time `json:"last_run_at"`
}

// HasFullSync reports whether a full sync has ever completed
func (c SyncCursor) HasFullSync() bool {
	return !c.LastFullSyncAt.IsZero()
}

// Clone returns a copy that shares no slices with c
func (c SyncCursor) Clone() SyncCursor {
	c.DeletionCandidates = slices.Clone(c.DeletionCandidates)
	return c
}

// SyncReport holds statistics from a sync operation
type SyncReport struct {
	RunID            string
	Mode             SyncMode
	StartedAt        time.Time
	ItemsScanned     int
	ItemsUpserted    int
	ItemsFailed      int
	ItemsDeleted     int
	EdgesWritten     int
	UnresolvedRefs   int // Cross-references and mentions that matched no item
	EmbeddingsFailed int // Items written without a fresh embedding
	OrphansPruned    int
	Duration         time.Duration
	FailedIDs        []string
}

// FailureRatio returns failed/scanned, 0 for an empty run
func (r *SyncReport) FailureRatio() float64 {
	if r.ItemsScanned == 0 {
		return 0
	}
	return float64(r.ItemsFailed) / float64(r.ItemsScanned)
}

// GraphStats summarises the contents of the graph index
type GraphStats struct {
	Items        int
	Tags         int
	Placeholders int
	Embedded     int
	EdgesByKind  map[RelationKind]int
}

// TotalEdges sums edges over all kinds
func (s *GraphStats) TotalEdges() int {
	n := 0
	for _, c := range s.EdgesByKind {
		n += c
	}
	return n
}
