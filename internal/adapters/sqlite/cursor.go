package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

const cursorKey = "sync_cursor"

// CursorStore persists the sync cursor in the index's meta table, so the
// checkpoint and the graph it describes live in one file
type CursorStore struct {
	db *sql.DB
}

var _ ports.CursorStore = (*CursorStore)(nil)

// Cursors returns the cursor store backed by this index
func (idx *Index) Cursors() *CursorStore {
	return &CursorStore{db: idx.db}
}

// Load returns the stored cursor, or the zero cursor if none was saved
func (s *CursorStore) Load(ctx context.Context) (domain.SyncCursor, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, cursorKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.SyncCursor{}, nil
	}
	if err != nil {
		return domain.SyncCursor{}, err
	}

	var c domain.SyncCursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return domain.SyncCursor{}, fmt.Errorf("decode sync cursor: %w", err)
	}
	return c, nil
}

// Save replaces the stored cursor
func (s *CursorStore) Save(ctx context.Context, c domain.SyncCursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode sync cursor: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, cursorKey, string(raw))
	return err
}
