package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"chimera/internal/domain"
	"chimera/internal/ports"
)

var errTxDone = errors.New("transaction already finished")

type node struct {
	item        domain.IndexedItem
	placeholder bool // Referenced by an edge but never synced
}

type edgeEnd struct {
	Kind domain.RelationKind
	ID   string
}

// Graph is an in-process GraphStore. Transactions buffer their writes and
// apply them under one write lock on Commit.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	out   map[string]map[edgeEnd]bool
	in    map[string]map[edgeEnd]bool
}

// Ensure Graph implements GraphStore
var _ ports.GraphStore = (*Graph)(nil)

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
		out:   make(map[string]map[edgeEnd]bool),
		in:    make(map[string]map[edgeEnd]bool),
	}
}

func (g *Graph) BeginTx(ctx context.Context) (ports.GraphTx, error) {
	return &graphTx{g: g}, ctx.Err()
}

func (g *Graph) QueryBySimilarity(ctx context.Context, vector []float32, k int) ([]domain.SimilarityHit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var hits []domain.SimilarityHit
	for id, n := range g.nodes {
		if n.placeholder || domain.IsTagNode(id) || !n.item.HasEmbedding() {
			continue
		}
		hits = append(hits, domain.SimilarityHit{Item: cloneItem(n.item), Score: domain.CosineSimilarity(vector, n.item.Embedding)})
	}
	slices.SortFunc(hits, func(a, b domain.SimilarityHit) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Item.ID, b.Item.ID))
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, ctx.Err()
}

func (g *Graph) TraverseFrom(ctx context.Context, ids []string, maxDepth int, kinds []domain.RelationKind) ([]domain.Hop, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allowed := domain.KindSet(kinds)
	return domain.Traverse(ids, maxDepth, func(id string) ([]domain.Neighbor, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ns []domain.Neighbor
		for e := range g.out[id] {
			if allowed[e.Kind] {
				ns = append(ns, domain.Neighbor{ID: e.ID, Kind: e.Kind})
			}
		}
		for e := range g.in[id] {
			if allowed[e.Kind] {
				ns = append(ns, domain.Neighbor{ID: e.ID, Kind: e.Kind})
			}
		}
		slices.SortFunc(ns, func(a, b domain.Neighbor) int {
			return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Kind, b.Kind))
		})
		return ns, nil
	})
}

func (g *Graph) GetItems(ctx context.Context, ids []string) (map[string]*domain.IndexedItem, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]*domain.IndexedItem, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok && !n.placeholder && !domain.IsTagNode(id) {
			item := cloneItem(n.item)
			out[id] = &item
		}
	}
	return out, ctx.Err()
}

func (g *Graph) ListItemIDs(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, n := range g.nodes {
		if !n.placeholder && !domain.IsTagNode(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, ctx.Err()
}

func (g *Graph) ResolveReferences(ctx context.Context, refs []string) (map[string]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byTitle := make(map[string]string)
	for id, n := range g.nodes {
		if n.placeholder || domain.IsTagNode(id) {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(n.item.Title))
		if cur, ok := byTitle[key]; !ok || id < cur {
			byTitle[key] = id
		}
	}

	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if n, ok := g.nodes[ref]; ok && !n.placeholder && !domain.IsTagNode(ref) {
			out[ref] = ref
			continue
		}
		if id, ok := byTitle[strings.ToLower(strings.TrimSpace(ref))]; ok {
			out[ref] = id
		}
	}
	return out, ctx.Err()
}

func (g *Graph) PruneOrphans(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	for id, n := range g.nodes {
		if !n.placeholder && !domain.IsTagNode(id) {
			continue
		}
		if len(g.out[id]) == 0 && len(g.in[id]) == 0 {
			delete(g.nodes, id)
			pruned++
		}
	}
	return pruned, ctx.Err()
}

func (g *Graph) Stats(ctx context.Context) (*domain.GraphStats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := &domain.GraphStats{EdgesByKind: make(map[domain.RelationKind]int)}
	for id, n := range g.nodes {
		switch {
		case domain.IsTagNode(id):
			st.Tags++
		case n.placeholder:
			st.Placeholders++
		default:
			st.Items++
			if n.item.HasEmbedding() {
				st.Embedded++
			}
		}
	}
	for _, edges := range g.out {
		for e := range edges {
			st.EdgesByKind[e.Kind]++
		}
	}
	return st, ctx.Err()
}

func (g *Graph) Close() error { return nil }

// Edges returns every stored edge, sorted. Used by tests and status output.
func (g *Graph) Edges() []domain.Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rels []domain.Relation
	for src, edges := range g.out {
		for e := range edges {
			rels = append(rels, domain.Relation{Kind: e.Kind, Source: src, Target: e.ID})
		}
	}
	return domain.SortRelations(rels)
}

// NodeIDs returns every node id including tag and placeholder nodes
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Mutations below run with g.mu held for writing

func (g *Graph) upsertNode(item domain.IndexedItem) {
	if n, ok := g.nodes[item.ID]; ok && !n.placeholder && item.Embedding == nil {
		item.Embedding = n.item.Embedding
	}
	g.nodes[item.ID] = &node{item: item}
}

func (g *Graph) deleteNode(id string) {
	g.deleteEdgesFrom(id)
	for e := range g.in[id] {
		delete(g.out[e.ID], edgeEnd{Kind: e.Kind, ID: id})
	}
	delete(g.in, id)
	delete(g.nodes, id)
}

func (g *Graph) deleteEdgesFrom(src string) {
	for e := range g.out[src] {
		delete(g.in[e.ID], edgeEnd{Kind: e.Kind, ID: src})
	}
	delete(g.out, src)
}

func (g *Graph) upsertEdge(rel domain.Relation) {
	if _, ok := g.nodes[rel.Target]; !ok {
		n := &node{item: domain.IndexedItem{ID: rel.Target}}
		if domain.IsTagNode(rel.Target) {
			n.item.Title = domain.TagLabel(rel.Target)
		} else {
			n.placeholder = true
		}
		g.nodes[rel.Target] = n
	}
	if g.out[rel.Source] == nil {
		g.out[rel.Source] = make(map[edgeEnd]bool)
	}
	if g.in[rel.Target] == nil {
		g.in[rel.Target] = make(map[edgeEnd]bool)
	}
	g.out[rel.Source][edgeEnd{Kind: rel.Kind, ID: rel.Target}] = true
	g.in[rel.Target][edgeEnd{Kind: rel.Kind, ID: rel.Source}] = true
}

func cloneItem(item domain.IndexedItem) domain.IndexedItem {
	item.Tags = slices.Clone(item.Tags)
	item.Embedding = slices.Clone(item.Embedding)
	return item
}

// graphTx buffers writes until Commit
type graphTx struct {
	g    *Graph
	ops  []func(*Graph)
	done bool
}

func (t *graphTx) UpsertNode(_ context.Context, item *domain.IndexedItem) error {
	if t.done {
		return errTxDone
	}
	it := cloneItem(*item)
	t.ops = append(t.ops, func(g *Graph) { g.upsertNode(it) })
	return nil
}

func (t *graphTx) DeleteNode(_ context.Context, id string) error {
	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, func(g *Graph) { g.deleteNode(id) })
	return nil
}

func (t *graphTx) DeleteEdgesFrom(_ context.Context, sourceID string) error {
	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, func(g *Graph) { g.deleteEdgesFrom(sourceID) })
	return nil
}

func (t *graphTx) UpsertEdge(_ context.Context, rel domain.Relation) error {
	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, func(g *Graph) { g.upsertEdge(rel) })
	return nil
}

func (t *graphTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	for _, op := range t.ops {
		op(t.g)
	}
	return nil
}

func (t *graphTx) Rollback(context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}
