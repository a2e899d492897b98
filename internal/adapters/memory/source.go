package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

// Source is an in-process DocumentSource holding raw snapshots
type Source struct {
	mu    sync.RWMutex
	items map[string]domain.RawItem
	fetch map[string]error // Forced FetchContent failures by id
}

var _ ports.DocumentSource = (*Source)(nil)

// NewSource creates a source seeded with items
func NewSource(items ...domain.RawItem) *Source {
	s := &Source{items: make(map[string]domain.RawItem), fetch: make(map[string]error)}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

// Put adds or replaces an item
func (s *Source) Put(item domain.RawItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// Remove deletes an item
func (s *Source) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// FailFetch makes FetchContent(id) return err
func (s *Source) FailFetch(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetch[id] = err
}

func (s *Source) Name() string { return "memory" }

func (s *Source) ListChangedSince(ctx context.Context, since time.Time) ([]domain.RawItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RawItem
	for _, it := range s.items {
		if it.LastModified.After(since) {
			out = append(out, it)
		}
	}
	sortRaw(out)
	return out, ctx.Err()
}

func (s *Source) ListAll(ctx context.Context) ([]domain.RawItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RawItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sortRaw(out)
	return out, ctx.Err()
}

func (s *Source) FetchContent(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fetch[id]; err != nil {
		return "", err
	}
	it, ok := s.items[id]
	if !ok {
		return "", &domain.NotFoundError{ID: id}
	}
	return it.Body, ctx.Err()
}

func sortRaw(items []domain.RawItem) {
	slices.SortFunc(items, func(a, b domain.RawItem) int { return cmp.Compare(a.ID, b.ID) })
}
