package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

// indexTx implements ports.GraphTx
type indexTx struct {
	tx *sql.Tx
}

// Ensure indexTx implements GraphTx
var _ ports.GraphTx = (*indexTx)(nil)

// UpsertNode inserts or updates an item. A nil embedding keeps the stored
// one; a placeholder or tag row with the same id is promoted to an item.
func (t *indexTx) UpsertNode(ctx context.Context, item *domain.IndexedItem) error {
	tags, err := json.Marshal(nonNil(item.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO nodes (id, node_type, title, title_key, kind, tags, embedding, last_modified, url)
		VALUES (?, 'item', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			node_type = 'item',
			title = excluded.title,
			title_key = excluded.title_key,
			kind = excluded.kind,
			tags = excluded.tags,
			embedding = COALESCE(excluded.embedding, nodes.embedding),
			last_modified = excluded.last_modified,
			url = excluded.url
	`, item.ID, item.Title, titleKey(item.Title), item.Kind.String(), string(tags),
		encodeVector(item.Embedding), item.LastModified.UnixNano(), item.ExternalURL)
	return err
}

// DeleteNode removes a node and every edge touching it
func (t *indexTx) DeleteNode(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE source = ? OR target = ?`, id, id); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	return err
}

// DeleteEdgesFrom removes all outgoing edges of a source node
func (t *indexTx) DeleteEdgesFrom(ctx context.Context, sourceID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE source = ?`, sourceID)
	return err
}

// UpsertEdge adds an edge, creating a tag or placeholder node for a target
// that is not stored yet
func (t *indexTx) UpsertEdge(ctx context.Context, rel domain.Relation) error {
	nodeType, title := nodePlaceholder, ""
	if domain.IsTagNode(rel.Target) {
		nodeType, title = nodeTag, domain.TagLabel(rel.Target)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO nodes (id, node_type, title, title_key) VALUES (?, ?, ?, ?)
	`, rel.Target, nodeType, title, titleKey(title))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO edges (source, target, kind) VALUES (?, ?, ?)
	`, rel.Source, rel.Target, string(rel.Kind))
	return err
}

// Commit commits the transaction
func (t *indexTx) Commit(context.Context) error {
	return t.tx.Commit()
}

// Rollback aborts the transaction
func (t *indexTx) Rollback(context.Context) error {
	return t.tx.Rollback()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
