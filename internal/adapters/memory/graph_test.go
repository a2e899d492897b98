package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func write(t *testing.T, g *Graph, fn func(ctx context.Context, tx txWriter)) {
	t.Helper()
	ctx := context.Background()
	tx, err := g.BeginTx(ctx)
	require.NoError(t, err)
	fn(ctx, tx)
	require.NoError(t, tx.Commit(ctx))
}

type txWriter interface {
	UpsertNode(context.Context, *domain.IndexedItem) error
	DeleteNode(context.Context, string) error
	DeleteEdgesFrom(context.Context, string) error
	UpsertEdge(context.Context, domain.Relation) error
}

func TestGraphTagNodesAreShared(t *testing.T) {
	g := NewGraph()
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "p1", Title: "Resume", LastModified: t0}))
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "p2", Title: "Company Bio", LastModified: t0}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHasTag, Source: "p1", Target: "tag:career"}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHasTag, Source: "p2", Target: "tag:career"}))
	})

	assert.Equal(t, []string{"p1", "p2", "tag:career"}, g.NodeIDs())
	st, err := g.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Items)
	assert.Equal(t, 1, st.Tags)
	assert.Equal(t, 2, st.EdgesByKind[domain.RelHasTag])
}

func TestGraphUncommittedWritesAreInvisible(t *testing.T) {
	g := NewGraph()
	ctx := context.Background()
	tx, err := g.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "p1", LastModified: t0}))

	ids, err := g.ListItemIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, tx.Rollback(ctx))
	assert.Error(t, tx.Commit(ctx))
	assert.Empty(t, g.NodeIDs())
}

func TestGraphDeleteNodeRemovesTouchingEdges(t *testing.T) {
	g := NewGraph()
	write(t, g, func(ctx context.Context, tx txWriter) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: id, LastModified: t0}))
		}
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHierarchy, Source: "a", Target: "b"}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelMention, Source: "b", Target: "c"}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelMention, Source: "a", Target: "c"}))
	})
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.DeleteNode(ctx, "b"))
	})

	assert.Equal(t, []domain.Relation{{Kind: domain.RelMention, Source: "a", Target: "c"}}, g.Edges())
}

func TestGraphUpsertKeepsEmbeddingWhenNil(t *testing.T) {
	g := NewGraph()
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "a", Title: "v1", Embedding: []float32{1, 0}, LastModified: t0}))
	})
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "a", Title: "v2", LastModified: t0.Add(time.Hour)}))
	})

	items, err := g.GetItems(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "v2", items["a"].Title)
	assert.Equal(t, []float32{1, 0}, items["a"].Embedding)
}

func TestGraphResolveAndPrune(t *testing.T) {
	g := NewGraph()
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "b2", Title: "Projects", LastModified: t0}))
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "a1", Title: "projects", LastModified: t0}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHierarchy, Source: "a1", Target: "ghost"}))
	})

	got, err := g.ResolveReferences(context.Background(), []string{"b2", "PROJECTS", "missing", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b2": "b2", "PROJECTS": "a1"}, got)

	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.DeleteEdgesFrom(ctx, "a1"))
	})
	n, err := g.PruneOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a1", "b2"}, g.NodeIDs())
}

func TestGraphSimilarityAndTraversal(t *testing.T) {
	g := NewGraph()
	write(t, g, func(ctx context.Context, tx txWriter) {
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "a", Embedding: []float32{1, 0}, LastModified: t0}))
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "b", Embedding: []float32{0, 1}, LastModified: t0}))
		require.NoError(t, tx.UpsertNode(ctx, &domain.IndexedItem{ID: "c", LastModified: t0}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHasTag, Source: "a", Target: "tag:x"}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHasTag, Source: "b", Target: "tag:x"}))
		require.NoError(t, tx.UpsertEdge(ctx, domain.Relation{Kind: domain.RelHierarchy, Source: "c", Target: "a"}))
	})
	ctx := context.Background()

	hits, err := g.QueryBySimilarity(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Item.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	hops, err := g.TraverseFrom(ctx, []string{"a"}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hop{
		{Seed: "a", ID: "c", Depth: 1, Via: domain.RelHierarchy},
		{Seed: "a", ID: "tag:x", Depth: 1, Via: domain.RelHasTag},
		{Seed: "a", ID: "b", Depth: 2, Via: domain.RelHasTag},
	}, hops)

	hops, err = g.TraverseFrom(ctx, []string{"a"}, 2, []domain.RelationKind{domain.RelHierarchy})
	require.NoError(t, err)
	assert.Equal(t, []domain.Hop{{Seed: "a", ID: "c", Depth: 1, Via: domain.RelHierarchy}}, hops)
}
