package neo4jdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chimera/internal/domain"
)

// fakeRecord mimics *neo4j.Record for decoder tests
type fakeRecord map[string]any

func (r fakeRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func TestRecordItem(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := fakeRecord{
		"id":            "p1",
		"title":         "Resume",
		"kind":          "leaf",
		"tags":          []any{"career", 42, "docs"},
		"embedding":     []any{0.5, int64(1), -0.25},
		"last_modified": ts.UnixNano(),
		"url":           "https://notion.so/p1",
	}

	item := recordItem(rec)
	assert.Equal(t, domain.IndexedItem{
		ID:           "p1",
		Title:        "Resume",
		Kind:         domain.KindLeaf,
		Tags:         []string{"career", "docs"},
		Embedding:    []float32{0.5, 1, -0.25},
		LastModified: ts,
		ExternalURL:  "https://notion.so/p1",
	}, item)
}

func TestRecordItemMissingFields(t *testing.T) {
	item := recordItem(fakeRecord{"id": "x", "embedding": nil})
	assert.Equal(t, "x", item.ID)
	assert.Nil(t, item.Embedding)
	assert.True(t, item.LastModified.IsZero())
	assert.Equal(t, domain.KindUnknown, item.Kind)
}

func TestCosineFromIndexScore(t *testing.T) {
	assert.InDelta(t, 1.0, cosineFromIndexScore(1), 1e-12)
	assert.InDelta(t, 0.0, cosineFromIndexScore(0.5), 1e-12)
	assert.InDelta(t, 0.82, cosineFromIndexScore(0.91), 1e-12)
}

func TestRelTypes(t *testing.T) {
	assert.Equal(t, []string{"CROSS_REFERENCE", "HAS_TAG", "HIERARCHY", "MENTION", "STRUCTURED_LINK"}, relTypes(nil))
	assert.Equal(t, []string{"HAS_TAG"}, relTypes([]domain.RelationKind{domain.RelHasTag}))
}

func TestUpsertEdgeCypher(t *testing.T) {
	q := upsertEdgeCypher(domain.Relation{Kind: domain.RelHasTag, Source: "p1", Target: "tag:career"})
	assert.Contains(t, q, "ON CREATE SET t:Tag")
	assert.Contains(t, q, "MERGE (s)-[:HAS_TAG]->(t)")

	q = upsertEdgeCypher(domain.Relation{Kind: domain.RelHierarchy, Source: "p1", Target: "root"})
	assert.Contains(t, q, "ON CREATE SET t:Placeholder")
	assert.Equal(t, "career", targetTitle("tag:career"))
	assert.Empty(t, targetTitle("root"))
}

func TestVectorIndexStatement(t *testing.T) {
	q := vectorIndexStatement(1536)
	assert.Contains(t, q, "`vector.dimensions`: 1536")
	assert.Contains(t, q, "'cosine'")
	assert.Contains(t, q, vectorIndexName)
}
