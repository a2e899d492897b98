package neo4jdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

// graphTx is one explicit write transaction on its own session
type graphTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

var _ ports.GraphTx = (*graphTx)(nil)

func (t *graphTx) exec(ctx context.Context, cypher string, params map[string]any) error {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// UpsertNode merges an item. A nil embedding keeps the stored one; a
// placeholder with the same id becomes an item.
func (t *graphTx) UpsertNode(ctx context.Context, item *domain.IndexedItem) error {
	var embedding any
	if item.Embedding != nil {
		embedding = toFloat64s(item.Embedding)
	}
	return t.exec(ctx, `
		MERGE (n:Node {id: $id})
		SET n.title = $title,
		    n.title_key = $title_key,
		    n.kind = $kind,
		    n.tags = $tags,
		    n.last_modified = $last_modified,
		    n.url = $url,
		    n.embedding = coalesce($embedding, n.embedding)
		SET n:Item
		REMOVE n:Placeholder
	`, map[string]any{
		"id":            item.ID,
		"title":         item.Title,
		"title_key":     titleKey(item.Title),
		"kind":          item.Kind.String(),
		"tags":          nonNil(item.Tags),
		"last_modified": item.LastModified.UnixNano(),
		"url":           item.ExternalURL,
		"embedding":     embedding,
	})
}

// DeleteNode removes the node and every relationship touching it
func (t *graphTx) DeleteNode(ctx context.Context, id string) error {
	return t.exec(ctx, `MATCH (n:Node {id: $id}) DETACH DELETE n`, map[string]any{"id": id})
}

func (t *graphTx) DeleteEdgesFrom(ctx context.Context, sourceID string) error {
	return t.exec(ctx, `MATCH (:Node {id: $id})-[r]->() DELETE r`, map[string]any{"id": sourceID})
}

// UpsertEdge merges a typed relationship, creating a :Tag or :Placeholder
// target when none exists
func (t *graphTx) UpsertEdge(ctx context.Context, rel domain.Relation) error {
	if !slices.Contains(domain.AllRelationKinds, rel.Kind) {
		return fmt.Errorf("neo4jdb: unknown relation kind %q", rel.Kind)
	}
	return t.exec(ctx, upsertEdgeCypher(rel), map[string]any{
		"source": rel.Source,
		"target": rel.Target,
		"title":  targetTitle(rel.Target),
	})
}

// upsertEdgeCypher inlines the label and relationship type, which Cypher
// cannot take as parameters. Both come from closed sets.
func upsertEdgeCypher(rel domain.Relation) string {
	label := "Placeholder"
	if domain.IsTagNode(rel.Target) {
		label = "Tag"
	}
	return fmt.Sprintf(`
		MATCH (s:Node {id: $source})
		MERGE (t:Node {id: $target})
		ON CREATE SET t:%s, t.title = $title, t.title_key = toLower($title)
		MERGE (s)-[:%s]->(t)
	`, label, rel.Kind)
}

func targetTitle(id string) string {
	if domain.IsTagNode(id) {
		return domain.TagLabel(id)
	}
	return ""
}

func (t *graphTx) Commit(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *graphTx) Rollback(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}
