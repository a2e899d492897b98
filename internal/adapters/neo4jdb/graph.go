package neo4jdb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

const vectorIndexName = "chimera_item_embedding"

// Config holds connection settings
type Config struct {
	URI        string
	User       string
	Password   string
	Database   string
	VectorDims int
	Timeout    time.Duration
	MaxPool    int
}

// Graph implements ports.GraphStore on Neo4j. Every node carries the :Node
// label; synced items add :Item, tag pseudo-nodes :Tag and edge targets
// that were never synced :Placeholder. Relationship types are the relation
// kinds themselves.
type Graph struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

var _ ports.GraphStore = (*Graph)(nil)

// Open connects, verifies connectivity and ensures constraints and the
// vector index exist
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Graph, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4jdb: uri required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPool
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	g := &Graph{driver: driver, database: cfg.Database, log: log.With("client", "Neo4jGraph")}
	if err := g.ensureSchema(ctx, cfg.VectorDims); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	g.log.Info("neo4j graph ready", "database", cfg.Database, "vector_dims", cfg.VectorDims)
	return g, nil
}

func (g *Graph) ensureSchema(ctx context.Context, dims int) error {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT chimera_node_id IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX chimera_item_title_key IF NOT EXISTS FOR (n:Item) ON (n.title_key)`,
	}
	if dims > 0 {
		stmts = append(stmts, vectorIndexStatement(dims))
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("neo4jdb: schema init: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("neo4jdb: schema init: %w", err)
		}
	}
	return nil
}

func vectorIndexStatement(dims int) string {
	return fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:Item) ON (n.embedding) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		vectorIndexName, dims)
}

func (g *Graph) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: g.database})
}

// read runs cypher in a managed read transaction and returns its records
func (g *Graph) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (g *Graph) BeginTx(ctx context.Context) (ports.GraphTx, error) {
	session := g.session(ctx, neo4j.AccessModeWrite)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: begin: %w", err)
	}
	return &graphTx{session: session, tx: tx}, nil
}

const itemReturn = `n.id AS id, n.title AS title, n.kind AS kind, n.tags AS tags,
	n.embedding AS embedding, n.last_modified AS last_modified, n.url AS url`

// QueryBySimilarity uses the cosine vector index. Neo4j reports cosine as
// (1 + cos) / 2, which is mapped back to [-1, 1].
func (g *Graph) QueryBySimilarity(ctx context.Context, vector []float32, k int) ([]domain.SimilarityHit, error) {
	if k < 1 || len(vector) == 0 {
		return nil, nil
	}
	recs, err := g.read(ctx, `
		CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node AS n, score
		WHERE n:Item
		RETURN `+itemReturn+`, score
		ORDER BY score DESC, id ASC
	`, map[string]any{"index": vectorIndexName, "k": k, "vector": toFloat64s(vector)})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: similarity: %w", err)
	}

	hits := make([]domain.SimilarityHit, 0, len(recs))
	for _, rec := range recs {
		hits = append(hits, domain.SimilarityHit{Item: recordItem(rec), Score: cosineFromIndexScore(floatField(rec, "score"))})
	}
	return hits, nil
}

// TraverseFrom expands neighbours hop by hop inside one read transaction
func (g *Graph) TraverseFrom(ctx context.Context, ids []string, maxDepth int, kinds []domain.RelationKind) ([]domain.Hop, error) {
	if maxDepth < 1 || len(ids) == 0 {
		return nil, nil
	}
	allowed := relTypes(kinds)

	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return domain.Traverse(ids, maxDepth, func(id string) ([]domain.Neighbor, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node {id: $id})-[r]-(m:Node)
				WHERE type(r) IN $kinds
				RETURN DISTINCT m.id AS id, type(r) AS kind
				ORDER BY id, kind
			`, map[string]any{"id": id, "kinds": allowed})
			if err != nil {
				return nil, err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			ns := make([]domain.Neighbor, 0, len(recs))
			for _, rec := range recs {
				ns = append(ns, domain.Neighbor{ID: stringField(rec, "id"), Kind: domain.RelationKind(stringField(rec, "kind"))})
			}
			return ns, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: traverse: %w", err)
	}
	return out.([]domain.Hop), nil
}

func (g *Graph) GetItems(ctx context.Context, ids []string) (map[string]*domain.IndexedItem, error) {
	out := make(map[string]*domain.IndexedItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	recs, err := g.read(ctx, `MATCH (n:Item) WHERE n.id IN $ids RETURN `+itemReturn, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: get items: %w", err)
	}
	for _, rec := range recs {
		item := recordItem(rec)
		out[item.ID] = &item
	}
	return out, nil
}

func (g *Graph) ListItemIDs(ctx context.Context) ([]string, error) {
	recs, err := g.read(ctx, `MATCH (n:Item) RETURN n.id AS id ORDER BY id`, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: list items: %w", err)
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, stringField(rec, "id"))
	}
	return ids, nil
}

// ResolveReferences matches by id first, then case-insensitive title with
// the smallest id winning
func (g *Graph) ResolveReferences(ctx context.Context, refs []string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	rows := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, map[string]any{"ref": ref, "key": titleKey(ref)})
	}
	recs, err := g.read(ctx, `
		UNWIND $refs AS r
		OPTIONAL MATCH (byID:Item {id: r.ref})
		OPTIONAL MATCH (byTitle:Item {title_key: r.key})
		WITH r, byID, byTitle ORDER BY byTitle.id
		WITH r, byID, collect(byTitle.id) AS titled
		RETURN r.ref AS ref, coalesce(byID.id, head(titled)) AS id
	`, map[string]any{"refs": rows})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: resolve: %w", err)
	}
	for _, rec := range recs {
		if id := stringField(rec, "id"); id != "" {
			out[stringField(rec, "ref")] = id
		}
	}
	return out, nil
}

func (g *Graph) PruneOrphans(ctx context.Context) (int, error) {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Node) WHERE (n:Tag OR n:Placeholder) AND NOT (n)--()
			WITH collect(n) AS orphans
			FOREACH (x IN orphans | DELETE x)
			RETURN size(orphans) AS pruned
		`, nil)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return intField(rec, "pruned"), nil
	})
	if err != nil {
		return 0, fmt.Errorf("neo4jdb: prune: %w", err)
	}
	return out.(int), nil
}

func (g *Graph) Stats(ctx context.Context) (*domain.GraphStats, error) {
	st := &domain.GraphStats{EdgesByKind: make(map[domain.RelationKind]int)}

	recs, err := g.read(ctx, `
		MATCH (n:Node)
		RETURN count(CASE WHEN n:Item THEN 1 END) AS items,
		       count(CASE WHEN n:Tag THEN 1 END) AS tags,
		       count(CASE WHEN n:Placeholder THEN 1 END) AS placeholders,
		       count(CASE WHEN n:Item AND n.embedding IS NOT NULL THEN 1 END) AS embedded
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: stats: %w", err)
	}
	if len(recs) > 0 {
		st.Items = intField(recs[0], "items")
		st.Tags = intField(recs[0], "tags")
		st.Placeholders = intField(recs[0], "placeholders")
		st.Embedded = intField(recs[0], "embedded")
	}

	recs, err = g.read(ctx, `MATCH (:Node)-[r]->(:Node) RETURN type(r) AS kind, count(r) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: stats: %w", err)
	}
	for _, rec := range recs {
		st.EdgesByKind[domain.RelationKind(stringField(rec, "kind"))] = intField(rec, "n")
	}
	return st, nil
}

func (g *Graph) Close() error {
	if g == nil || g.driver == nil {
		return nil
	}
	err := g.driver.Close(context.Background())
	g.driver = nil
	return err
}

// relTypes lists the relationship types a traversal may follow
func relTypes(kinds []domain.RelationKind) []string {
	set := domain.KindSet(kinds)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, string(k))
	}
	slices.Sort(out)
	return out
}

// cosineFromIndexScore maps the vector index score (1 + cos) / 2 back to cos
func cosineFromIndexScore(s float64) float64 {
	return 2*s - 1
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
