package ports

import (
	"context"

	"chimera/internal/domain"
)

// GraphStore is the relationship index shared by both pipelines.
// The reconciliation engine is its only writer; queries only read.
type GraphStore interface {
	// Write path, one transaction per item
	BeginTx(ctx context.Context) (GraphTx, error)

	// Read path
	QueryBySimilarity(ctx context.Context, vector []float32, k int) ([]domain.SimilarityHit, error)
	TraverseFrom(ctx context.Context, ids []string, maxDepth int, kinds []domain.RelationKind) ([]domain.Hop, error)
	GetItems(ctx context.Context, ids []string) (map[string]*domain.IndexedItem, error)
	ListItemIDs(ctx context.Context) ([]string, error)

	// ResolveReferences maps free-text reference targets (an id or a title)
	// to item ids. Unresolvable references are absent from the result.
	ResolveReferences(ctx context.Context, refs []string) (map[string]string, error)

	// Maintenance
	PruneOrphans(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*domain.GraphStats, error)
	Close() error
}

// GraphTx scopes the writes for one item so readers never observe a
// half-replaced edge set
type GraphTx interface {
	// Node operations. A nil embedding keeps the stored one.
	UpsertNode(ctx context.Context, item *domain.IndexedItem) error
	DeleteNode(ctx context.Context, id string) error

	// Edge operations
	DeleteEdgesFrom(ctx context.Context, sourceID string) error
	UpsertEdge(ctx context.Context, rel domain.Relation) error

	// Transaction control
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CursorStore persists the SyncCursor across restarts
type CursorStore interface {
	Load(ctx context.Context) (domain.SyncCursor, error)
	Save(ctx context.Context, cursor domain.SyncCursor) error
}
