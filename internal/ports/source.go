package ports

import (
	"context"
	"time"

	"chimera/internal/domain"
)

// DocumentSource is the authoritative external content store
type DocumentSource interface {
	// Snapshot reads, metadata plus transient body for extraction
	ListChangedSince(ctx context.Context, since time.Time) ([]domain.RawItem, error)
	ListAll(ctx context.Context) ([]domain.RawItem, error)

	// FetchContent returns live body text, *domain.NotFoundError if the
	// item is gone or inaccessible
	FetchContent(ctx context.Context, id string) (string, error)

	// Name identifies the source in logs and status output
	Name() string
}
