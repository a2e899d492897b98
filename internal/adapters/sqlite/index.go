package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

const schemaVersion = "2"

// driverName is go-sqlite3 with the connection pragmas applied to every
// connection the pool opens
const driverName = "sqlite3_chimera"

const connPragmas = `
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
`

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec(connPragmas, nil)
			return err
		},
	})
}

// Node types stored in the nodes table
const (
	nodeItem        = "item"
	nodeTag         = "tag"
	nodePlaceholder = "placeholder" // Edge target that was never synced
)

// maxParams keeps IN lists under SQLite's bound parameter limit
const maxParams = 500

// Index implements ports.GraphStore using SQLite. Similarity search scans
// stored embeddings in process, which suits personal-scale corpora.
type Index struct {
	db     *sql.DB
	dbPath string
}

// Ensure Index implements GraphStore
var _ ports.GraphStore = (*Index)(nil)

// Open opens (creating if needed) the index database at dbPath. A database
// written by an older schema is wiped so the next sync rebuilds it.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	// WAL lets queries read while a sync run writes
	db, err := sql.Open(driverName, dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			node_type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			title_key TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			embedding BLOB,
			last_modified INTEGER NOT NULL DEFAULT 0,
			url TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS edges (
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (source, target, kind)
		);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_title_key ON nodes(title_key);
		CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	idx := &Index{db: db, dbPath: dbPath}
	if idx.NeedsFullRebuild() {
		if err := idx.reset(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to reset index: %w", err)
		}
	}
	return idx, nil
}

// Close closes the database connection
func (idx *Index) Close() error {
	if idx.db != nil {
		return idx.db.Close()
	}
	return nil
}

// Path returns the database file location
func (idx *Index) Path() string { return idx.dbPath }

// NeedsFullRebuild returns true if the stored schema version differs
func (idx *Index) NeedsFullRebuild() bool {
	var version string
	idx.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	return version != schemaVersion
}

// reset drops indexed data and the cursor, so the next run is a full sync
func (idx *Index) reset() error {
	_, err := idx.db.Exec(`
		DELETE FROM nodes;
		DELETE FROM edges;
		DELETE FROM meta;
		INSERT INTO meta (key, value) VALUES ('schema_version', ?);
	`, schemaVersion)
	return err
}

// BeginTx starts a new write transaction
func (idx *Index) BeginTx(ctx context.Context) (ports.GraphTx, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &indexTx{tx: tx}, nil
}

func (idx *Index) QueryBySimilarity(ctx context.Context, vector []float32, k int) ([]domain.SimilarityHit, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, title, kind, tags, embedding, last_modified, url
		FROM nodes WHERE node_type = 'item' AND embedding IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.SimilarityHit
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, domain.SimilarityHit{Item: *item, Score: domain.CosineSimilarity(vector, item.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b domain.SimilarityHit) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Item.ID, b.Item.ID))
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// TraverseFrom walks edges in both directions inside one read transaction,
// so the walk sees a single committed state of the graph
func (idx *Index) TraverseFrom(ctx context.Context, ids []string, maxDepth int, kinds []domain.RelationKind) ([]domain.Hop, error) {
	tx, err := idx.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		SELECT target, kind FROM edges WHERE source = ?
		UNION
		SELECT source, kind FROM edges WHERE target = ?
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	allowed := domain.KindSet(kinds)
	return domain.Traverse(ids, maxDepth, func(id string) ([]domain.Neighbor, error) {
		rows, err := stmt.QueryContext(ctx, id, id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var ns []domain.Neighbor
		for rows.Next() {
			var n domain.Neighbor
			var kind string
			if err := rows.Scan(&n.ID, &kind); err != nil {
				return nil, err
			}
			n.Kind = domain.RelationKind(kind)
			if allowed[n.Kind] {
				ns = append(ns, n)
			}
		}
		slices.SortFunc(ns, func(a, b domain.Neighbor) int {
			return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Kind, b.Kind))
		})
		return ns, rows.Err()
	})
}

func (idx *Index) GetItems(ctx context.Context, ids []string) (map[string]*domain.IndexedItem, error) {
	out := make(map[string]*domain.IndexedItem, len(ids))
	for chunk := range slices.Chunk(ids, maxParams) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := idx.db.QueryContext(ctx, `
			SELECT id, title, kind, tags, embedding, last_modified, url
			FROM nodes WHERE node_type = 'item' AND id IN (`+placeholders(len(chunk))+`)
		`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[item.ID] = item
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (idx *Index) ListItemIDs(ctx context.Context) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM nodes WHERE node_type = 'item' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveReferences matches each ref by id, then by case-insensitive title
// (smallest id wins on duplicate titles)
func (idx *Index) ResolveReferences(ctx context.Context, refs []string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		var id string
		err := idx.db.QueryRowContext(ctx, `
			SELECT id FROM nodes WHERE node_type = 'item' AND id = ?
			UNION ALL
			SELECT id FROM (
				SELECT id FROM nodes WHERE node_type = 'item' AND title_key = ? ORDER BY id LIMIT 1
			)
			LIMIT 1
		`, ref, titleKey(ref)).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[ref] = id
	}
	return out, nil
}

// PruneOrphans removes tag and placeholder nodes that no edge touches
func (idx *Index) PruneOrphans(ctx context.Context) (int, error) {
	res, err := idx.db.ExecContext(ctx, `
		DELETE FROM nodes
		WHERE node_type IN ('tag', 'placeholder')
		  AND NOT EXISTS (SELECT 1 FROM edges WHERE edges.source = nodes.id OR edges.target = nodes.id)
	`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (idx *Index) Stats(ctx context.Context) (*domain.GraphStats, error) {
	st := &domain.GraphStats{EdgesByKind: make(map[domain.RelationKind]int)}

	err := idx.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN node_type = 'item' THEN 1 END),
			COUNT(CASE WHEN node_type = 'tag' THEN 1 END),
			COUNT(CASE WHEN node_type = 'placeholder' THEN 1 END),
			COUNT(CASE WHEN node_type = 'item' AND embedding IS NOT NULL THEN 1 END)
		FROM nodes
	`).Scan(&st.Items, &st.Tags, &st.Placeholders, &st.Embedded)
	if err != nil {
		return nil, err
	}

	rows, err := idx.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM edges GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		st.EdgesByKind[domain.RelationKind(kind)] = n
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*domain.IndexedItem, error) {
	var item domain.IndexedItem
	var kind, tags string
	var blob []byte
	var modified int64
	if err := s.Scan(&item.ID, &item.Title, &kind, &tags, &blob, &modified, &item.ExternalURL); err != nil {
		return nil, err
	}
	item.Kind = domain.ParseItemKind(kind)
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", item.ID, err)
	}
	item.Embedding = decodeVector(blob)
	item.LastModified = time.Unix(0, modified).UTC()
	return &item, nil
}

// encodeVector packs a vector as little-endian float32s; nil stays NULL
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
