package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

// Options configures the connection used for the cursor
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// kv is the subset of the go-redis command set the store uses
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// CursorStore keeps the sync cursor as one JSON value, for deployments
// where several schedulers share a remote graph
type CursorStore struct {
	log    *logger.Logger
	rdb    kv
	key    string
	closer func() error
}

var _ ports.CursorStore = (*CursorStore)(nil)

// NewCursorStore connects and pings the server
func NewCursorStore(ctx context.Context, opts Options, log *logger.Logger) (*CursorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("missing redis cursor key")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	store := newCursorStore(rdb, opts.Key, log)
	store.closer = rdb.Close
	return store, nil
}

func newCursorStore(rdb kv, key string, log *logger.Logger) *CursorStore {
	return &CursorStore{
		log: log.With("service", "RedisCursorStore"),
		rdb: rdb,
		key: key,
	}
}

// Load returns the stored cursor, or the zero cursor if the key is absent
func (s *CursorStore) Load(ctx context.Context) (domain.SyncCursor, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		s.log.Debug("no stored cursor", "key", s.key)
		return domain.SyncCursor{}, nil
	}
	if err != nil {
		return domain.SyncCursor{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var c domain.SyncCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.SyncCursor{}, fmt.Errorf("decode sync cursor: %w", err)
	}
	return c, nil
}

// Save replaces the stored cursor. The key never expires.
func (s *CursorStore) Save(ctx context.Context, c domain.SyncCursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode sync cursor: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *CursorStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
