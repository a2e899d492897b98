package application

import "chimera/internal/domain"

// Re-export domain types for use by adapters
type (
	IndexedItem      = domain.IndexedItem
	SyncCursor       = domain.SyncCursor
	SyncReport       = domain.SyncReport
	SyncMode         = domain.SyncMode
	GraphStats       = domain.GraphStats
	StructuredResult = domain.StructuredResult
	ResultEntry      = domain.ResultEntry
	RelatedItem      = domain.RelatedItem
)

const (
	SyncIncremental = domain.SyncIncremental
	SyncFull        = domain.SyncFull
)

// ParseSyncMode converts "full" / "incremental" into a SyncMode
func ParseSyncMode(s string) (SyncMode, error) {
	mode, ok := domain.ParseSyncMode(s)
	if !ok {
		return mode, &ValidationError{Field: "mode", Message: "sync mode must be incremental or full, got: " + s}
	}
	return mode, nil
}
