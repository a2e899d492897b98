package memory

import (
	"context"
	"sync"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

// CursorStore keeps the sync cursor in process memory
type CursorStore struct {
	mu     sync.Mutex
	cursor domain.SyncCursor
	saves  int
}

var _ ports.CursorStore = (*CursorStore)(nil)

func (s *CursorStore) Load(ctx context.Context) (domain.SyncCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Clone(), ctx.Err()
}

func (s *CursorStore) Save(_ context.Context, c domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = c.Clone()
	s.saves++
	return nil
}

// Saves returns how many times the cursor was written
func (s *CursorStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
