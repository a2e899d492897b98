package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/domain"
	"chimera/internal/logger"
)

type fakeKV struct {
	values map[string]string
	getErr error
	setErr error
}

func newFakeKV() *fakeKV { return &fakeKV{values: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return goredis.NewStatusResult("OK", nil)
}

func TestLoadMissingKeyIsZeroCursor(t *testing.T) {
	store := newCursorStore(newFakeKV(), "chimera:sync_cursor", logger.Nop())

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, c.LastFullSyncAt.IsZero())
	assert.Empty(t, c.DeletionCandidates)
}

func TestSaveThenLoad(t *testing.T) {
	fake := newFakeKV()
	store := newCursorStore(fake, "chimera:sync_cursor", logger.Nop())
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	want := domain.SyncCursor{
		LastFullSyncAt:        at,
		LastIncrementalSyncAt: at.Add(time.Hour),
		DeletionCandidates:    []string{"p7"},
		LastRunStatus:         domain.RunPartial,
		LastRunAt:             at.Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, want))
	assert.Contains(t, fake.values["chimera:sync_cursor"], `"deletion_candidates":["p7"]`)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.LastFullSyncAt.Equal(got.LastFullSyncAt))
	assert.True(t, want.LastIncrementalSyncAt.Equal(got.LastIncrementalSyncAt))
	assert.Equal(t, want.DeletionCandidates, got.DeletionCandidates)
	assert.Equal(t, want.LastRunStatus, got.LastRunStatus)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	fake := newFakeKV()
	fake.getErr = errors.New("connection refused")
	_, err := newCursorStore(fake, "k", logger.Nop()).Load(ctx)
	assert.ErrorContains(t, err, "connection refused")

	fake = newFakeKV()
	fake.values["k"] = "{not json"
	_, err = newCursorStore(fake, "k", logger.Nop()).Load(ctx)
	assert.ErrorContains(t, err, "decode sync cursor")
}

func TestSaveError(t *testing.T) {
	fake := newFakeKV()
	fake.setErr = errors.New("READONLY")
	err := newCursorStore(fake, "k", logger.Nop()).Save(context.Background(), domain.SyncCursor{})
	assert.ErrorContains(t, err, "READONLY")
}

func TestNewCursorStoreValidates(t *testing.T) {
	ctx := context.Background()
	_, err := NewCursorStore(ctx, Options{Key: "k"}, logger.Nop())
	assert.Error(t, err)
	_, err = NewCursorStore(ctx, Options{Addr: "localhost:6379"}, logger.Nop())
	assert.Error(t, err)
	_, err = NewCursorStore(ctx, Options{Addr: "localhost:6379", Key: "k"}, nil)
	assert.Error(t, err)
}
