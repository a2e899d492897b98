package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/adapters/memory"
	"chimera/internal/application"
	"chimera/internal/application/extract"
	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// hashLLM embeds text as a bag-of-words hash vector
type hashLLM struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *hashLLM) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	v := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%16]++
	}
	return v, nil
}

func (f *hashLLM) Complete(context.Context, string, ports.Schema) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (f *hashLLM) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingGraph tracks which items were written and can fail chosen ones
type recordingGraph struct {
	*memory.Graph
	mu      sync.Mutex
	touched []string
	failOn  map[string]bool
}

func (g *recordingGraph) BeginTx(ctx context.Context) (ports.GraphTx, error) {
	tx, err := g.Graph.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingTx{GraphTx: tx, g: g}, nil
}

func (g *recordingGraph) touchedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.touched...)
}

type recordingTx struct {
	ports.GraphTx
	g *recordingGraph
}

func (t *recordingTx) UpsertNode(ctx context.Context, item *domain.IndexedItem) error {
	t.g.mu.Lock()
	t.g.touched = append(t.g.touched, item.ID)
	t.g.mu.Unlock()
	return t.GraphTx.UpsertNode(ctx, item)
}

func (t *recordingTx) UpsertEdge(ctx context.Context, rel domain.Relation) error {
	if t.g.failOn[rel.Source] {
		return errors.New("disk full")
	}
	return t.GraphTx.UpsertEdge(ctx, rel)
}

type fixture struct {
	source  *memory.Source
	graph   *recordingGraph
	cursors *memory.CursorStore
	llm     *hashLLM
	engine  *Engine
	now     time.Time
}

func newFixture(t *testing.T, items ...domain.RawItem) *fixture {
	t.Helper()
	f := &fixture{
		source:  memory.NewSource(items...),
		graph:   &recordingGraph{Graph: memory.NewGraph(), failOn: map[string]bool{}},
		cursors: &memory.CursorStore{},
		llm:     &hashLLM{},
		now:     t0.Add(time.Hour),
	}
	log := logger.Nop()
	policy := retry.Policy{MaxTries: 1}
	f.engine = NewEngine(
		NewScanner(f.source, policy, log),
		extract.New(),
		f.llm,
		f.graph,
		f.cursors,
		log,
		Options{Workers: 4, MaxFailureRatio: 0.5, Retry: policy, Now: func() time.Time { return f.now }},
	)
	return f
}

func (f *fixture) sync(t *testing.T, mode domain.SyncMode) (domain.SyncCursor, *domain.SyncReport, error) {
	t.Helper()
	cursor, err := f.cursors.Load(context.Background())
	require.NoError(t, err)
	return f.engine.Sync(context.Background(), mode, cursor)
}

func resume() domain.RawItem {
	return domain.RawItem{ID: "p1", Title: "Resume", Kind: domain.KindLeaf, Tags: []string{"career"},
		Body: "Worked with @alice, see [[Company Bio]] and [[Nowhere]]", LastModified: t0}
}

func bio() domain.RawItem {
	return domain.RawItem{ID: "p2", Title: "Company Bio", Kind: domain.KindLeaf, Tags: []string{"career"},
		ParentID: "root", LastModified: t0}
}

func alice() domain.RawItem {
	return domain.RawItem{ID: "u1", Title: "alice", Kind: domain.KindContainer, LastModified: t0}
}

func TestFullSyncSharesTagNode(t *testing.T) {
	f := newFixture(t, resume(), bio())

	cursor, report, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ItemsUpserted)
	assert.Equal(t, f.now, cursor.LastFullSyncAt)
	assert.Equal(t, f.now, cursor.LastIncrementalSyncAt)

	tagNodes := 0
	for _, id := range f.graph.NodeIDs() {
		if domain.IsTagNode(id) {
			tagNodes++
		}
	}
	assert.Equal(t, 1, tagNodes)

	edges := f.graph.Edges()
	assert.Contains(t, edges, domain.Relation{Kind: domain.RelHasTag, Source: "p1", Target: "tag:career"})
	assert.Contains(t, edges, domain.Relation{Kind: domain.RelHasTag, Source: "p2", Target: "tag:career"})
}

func TestSyncResolvesReferences(t *testing.T) {
	f := newFixture(t, resume(), bio(), alice())

	_, report, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	edges := f.graph.Edges()
	assert.Contains(t, edges, domain.Relation{Kind: domain.RelCrossReference, Source: "p1", Target: "p2"})
	assert.Contains(t, edges, domain.Relation{Kind: domain.RelMention, Source: "p1", Target: "u1"})
	assert.Contains(t, edges, domain.Relation{Kind: domain.RelHierarchy, Source: "p2", Target: "root"})
	assert.Equal(t, 1, report.UnresolvedRefs) // [[Nowhere]]

	ids, err := f.graph.ListItemIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "u1"}, ids, "placeholder parent is not an item")
}

func TestIncrementalSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, resume(), bio())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	before := f.graph.Edges()
	nodesBefore := f.graph.NodeIDs()

	for range 2 {
		f.now = f.now.Add(30 * time.Minute)
		_, report, err := f.sync(t, domain.SyncIncremental)
		require.NoError(t, err)
		assert.Zero(t, report.ItemsScanned)
	}

	assert.Equal(t, before, f.graph.Edges())
	assert.Equal(t, nodesBefore, f.graph.NodeIDs())
}

func TestIncrementalSyncTouchesOnlyChangedItem(t *testing.T) {
	f := newFixture(t, resume(), bio())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	f.graph.touched = nil
	p2Edges := edgesFrom(f.graph.Edges(), "p2")

	changed := resume()
	changed.Body = "no more references"
	changed.Tags = []string{"career", "writing"}
	changed.LastModified = f.now.Add(5 * time.Minute)
	f.source.Put(changed)
	f.now = f.now.Add(30 * time.Minute)

	cursor, report, err := f.sync(t, domain.SyncIncremental)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, f.graph.touchedIDs())
	assert.Equal(t, 1, report.ItemsUpserted)
	assert.Equal(t, f.now, cursor.LastIncrementalSyncAt)
	assert.Equal(t, t0.Add(time.Hour), cursor.LastFullSyncAt, "incremental never moves the full checkpoint")

	assert.ElementsMatch(t, []domain.Relation{
		{Kind: domain.RelHasTag, Source: "p1", Target: "tag:career"},
		{Kind: domain.RelHasTag, Source: "p1", Target: "tag:writing"},
	}, edgesFrom(f.graph.Edges(), "p1"), "stale edges replaced")
	assert.Equal(t, p2Edges, edgesFrom(f.graph.Edges(), "p2"))
}

func TestFullSyncRemovesTombstones(t *testing.T) {
	f := newFixture(t, resume(), bio(), alice())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	f.source.Remove("p2")
	f.now = f.now.Add(24 * time.Hour)
	cursor, report, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ItemsDeleted)
	assert.Empty(t, cursor.DeletionCandidates)
	assert.Equal(t, domain.RunSucceeded, cursor.LastRunStatus)

	ids, err := f.graph.ListItemIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "u1"}, ids)

	for _, e := range f.graph.Edges() {
		assert.NotEqual(t, "p2", e.Source)
		assert.NotEqual(t, "p2", e.Target)
	}
	assert.Contains(t, f.graph.Edges(), domain.Relation{Kind: domain.RelMention, Source: "p1", Target: "u1"})
	assert.NotContains(t, f.graph.NodeIDs(), "root", "orphaned placeholder pruned")
}

func TestIncrementalSyncNeverDeletes(t *testing.T) {
	f := newFixture(t, resume(), bio())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	f.source.Remove("p2")
	f.now = f.now.Add(time.Hour)
	_, report, err := f.sync(t, domain.SyncIncremental)
	require.NoError(t, err)

	assert.Zero(t, report.ItemsDeleted)
	ids, _ := f.graph.ListItemIDs(context.Background())
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestBatchFailureKeepsCursorAndEdges(t *testing.T) {
	f := newFixture(t, resume(), bio())
	first, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	p1Edges := edgesFrom(f.graph.Edges(), "p1")

	for _, item := range []domain.RawItem{resume(), bio()} {
		item.LastModified = f.now.Add(time.Minute)
		item.Tags = []string{"changed"}
		f.source.Put(item)
	}
	f.graph.failOn["p1"] = true
	f.graph.failOn["p2"] = true
	f.now = f.now.Add(time.Hour)

	cursor, report, err := f.sync(t, domain.SyncIncremental)
	require.Error(t, err)

	var bf *application.SyncBatchFailure
	require.True(t, errors.As(err, &bf))
	assert.True(t, IsBatchFailure(err))
	assert.Equal(t, 2, bf.Failed)
	assert.Equal(t, 2, report.ItemsFailed)
	assert.Equal(t, first.LastIncrementalSyncAt, cursor.LastIncrementalSyncAt)
	assert.Equal(t, first.LastFullSyncAt, cursor.LastFullSyncAt)
	assert.Equal(t, domain.RunFailed, cursor.LastRunStatus)
	assert.Equal(t, p1Edges, edgesFrom(f.graph.Edges(), "p1"), "rolled back item keeps its old edges")

	stored, err := f.cursors.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.LastIncrementalSyncAt, stored.LastIncrementalSyncAt)
}

func TestFailuresBelowRatioArePartial(t *testing.T) {
	f := newFixture(t, resume(), bio(), alice())
	f.graph.failOn["p1"] = true

	cursor, report, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ItemsFailed)
	assert.Equal(t, []string{"p1"}, report.FailedIDs)
	assert.Equal(t, domain.RunPartial, cursor.LastRunStatus)
	assert.Equal(t, f.now, cursor.LastFullSyncAt)
}

func TestEmbeddingFailureKeepsPreviousVector(t *testing.T) {
	f := newFixture(t, resume())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	items, err := f.graph.GetItems(context.Background(), []string{"p1"})
	require.NoError(t, err)
	original := items["p1"].Embedding
	require.NotEmpty(t, original)

	changed := resume()
	changed.Title = "Resume 2025"
	changed.LastModified = f.now.Add(time.Minute)
	f.source.Put(changed)
	f.llm.fail = true
	f.now = f.now.Add(time.Hour)

	_, report, err := f.sync(t, domain.SyncIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EmbeddingsFailed)

	items, err = f.graph.GetItems(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, "Resume 2025", items["p1"].Title)
	assert.Equal(t, original, items["p1"].Embedding)
}

func TestFullSyncSkipsUnchangedEmbeddings(t *testing.T) {
	f := newFixture(t, resume(), bio())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	calls := f.llm.embedCalls()

	f.now = f.now.Add(24 * time.Hour)
	_, _, err = f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, calls, f.llm.embedCalls())
}

func TestDeletionCandidatesCheckpointed(t *testing.T) {
	f := newFixture(t, resume(), bio())
	_, _, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)

	checkpoints := &checkpointStore{CursorStore: f.cursors}
	f.engine.cursors = checkpoints
	f.source.Remove("p1")
	f.now = f.now.Add(time.Hour)

	_, _, err = f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	require.NotEmpty(t, checkpoints.seen)
	assert.Equal(t, []string{"p1"}, checkpoints.seen[0])
}

type checkpointStore struct {
	*memory.CursorStore
	seen [][]string
}

func (s *checkpointStore) Save(ctx context.Context, c domain.SyncCursor) error {
	if len(c.DeletionCandidates) > 0 {
		s.seen = append(s.seen, append([]string(nil), c.DeletionCandidates...))
	}
	return s.CursorStore.Save(ctx, c)
}

func TestSyncRejectsInvalidItems(t *testing.T) {
	invalid := domain.RawItem{ID: "p9", Title: "No timestamp"}
	f := newFixture(t, resume(), bio(), alice(), invalid)

	_, report, err := f.sync(t, domain.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, 4, report.ItemsScanned)
	assert.Equal(t, 1, report.ItemsFailed)
	assert.Equal(t, []string{"p9"}, report.FailedIDs)
}

func edgesFrom(all []domain.Relation, src string) []domain.Relation {
	var out []domain.Relation
	for _, r := range all {
		if r.Source == src {
			out = append(out, r)
		}
	}
	return out
}
