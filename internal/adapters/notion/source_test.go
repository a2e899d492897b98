package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/retry"
)

// Search results, newest first, split over two result pages
const searchPage1 = `{
  "results": [
    {"object": "page", "id": "p-row", "url": "https://notion.so/p-row",
     "last_edited_time": "2025-03-01T10:00:00.000Z",
     "parent": {"type": "database_id", "database_id": "db-1"},
     "properties": {
       "Name": {"type": "title", "title": [{"type": "text", "plain_text": "Acme deal"}]},
       "Tags": {"type": "multi_select", "multi_select": [{"name": "sales"}, {"name": "q1"}]},
       "Client": {"type": "relation", "relation": [{"id": "p-client"}]}
     }},
    {"object": "page", "id": "p-old-trash", "in_trash": true,
     "last_edited_time": "2025-03-01T09:30:00.000Z", "parent": {"type": "workspace"}, "properties": {}}
  ],
  "has_more": true, "next_cursor": "c2"
}`

const searchPage2 = `{
  "results": [
    {"object": "database", "id": "db-1", "url": "https://notion.so/db-1",
     "last_edited_time": "2025-03-01T09:00:00.000Z",
     "parent": {"type": "page_id", "page_id": "p-home"},
     "title": [{"type": "text", "plain_text": "Deals"}],
     "description": [{"type": "text", "plain_text": "Pipeline of open deals."}]},
    {"object": "page", "id": "p-home", "url": "https://notion.so/p-home",
     "last_edited_time": "2025-02-01T09:00:00.000Z",
     "parent": {"type": "workspace", "workspace": true},
     "properties": {"title": {"type": "title", "title": [{"type": "text", "plain_text": "Home"}]}}}
  ],
  "has_more": false, "next_cursor": null
}`

const rowBlocks = `{
  "results": [
    {"id": "b1", "type": "paragraph", "paragraph": {"rich_text": [
      {"type": "text", "plain_text": "Call with "},
      {"type": "mention", "plain_text": "Jane Doe", "mention": {"type": "page", "page": {"id": "p-jane"}}},
      {"type": "text", "plain_text": " about [[Pricing]] and @ops."}
    ]}},
    {"id": "b2", "type": "divider", "divider": {}}
  ],
  "has_more": false, "next_cursor": null
}`

const homeBlocks = `{
  "results": [
    {"id": "b3", "type": "heading_1", "heading_1": {"rich_text": [{"type": "text", "plain_text": "Welcome"}]}},
    {"id": "b4", "type": "child_database", "child_database": {"title": "Deals"}}
  ],
  "has_more": false, "next_cursor": null
}`

type fakeNotion struct {
	t        *testing.T
	mu       sync.Mutex
	searches int
	cursors  []string
}

func (f *fakeNotion) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer secret", r.Header.Get("Authorization"))
	assert.Equal(f.t, "2022-06-28", r.Header.Get("Notion-Version"))

	switch {
	case r.URL.Path == "/v1/search":
		var req searchRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(f.t, req.Sort) {
			assert.Equal(f.t, "last_edited_time", req.Sort.Timestamp)
		}
		f.mu.Lock()
		f.searches++
		f.cursors = append(f.cursors, req.StartCursor)
		f.mu.Unlock()
		if req.StartCursor == "c2" {
			_, _ = w.Write([]byte(searchPage2))
			return
		}
		_, _ = w.Write([]byte(searchPage1))
	case r.URL.Path == "/v1/blocks/p-row/children":
		_, _ = w.Write([]byte(rowBlocks))
	case r.URL.Path == "/v1/blocks/p-home/children":
		_, _ = w.Write([]byte(homeBlocks))
	case r.URL.Path == "/v1/pages/p-home":
		_, _ = w.Write([]byte(`{"object": "page", "id": "p-home", "archived": false}`))
	case r.URL.Path == "/v1/pages/p-archived":
		_, _ = w.Write([]byte(`{"object": "page", "id": "p-archived", "archived": true}`))
	case r.URL.Path == "/v1/pages/db-1":
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": "validation_error"}`))
	case r.URL.Path == "/v1/databases/db-1":
		_, _ = w.Write([]byte(searchDatabase))
	case r.URL.Path == "/v1/pages/p-flaky":
		w.WriteHeader(http.StatusBadGateway)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code": "object_not_found"}`))
	}
}

const searchDatabase = `{"object": "database", "id": "db-1",
  "title": [{"type": "text", "plain_text": "Deals"}],
  "description": [{"type": "text", "plain_text": "Pipeline of open deals."}]}`

func newTestSource(t *testing.T, maxChars int) (*Source, *fakeNotion) {
	t.Helper()
	fake := &fakeNotion{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	src, err := New(Options{
		Token:           "secret",
		BaseURL:         srv.URL,
		MaxContentChars: maxChars,
		Retry:           retry.Policy{MaxTries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, logger.Nop())
	require.NoError(t, err)
	return src, fake
}

func byID(items []domain.RawItem) map[string]domain.RawItem {
	out := make(map[string]domain.RawItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func TestListAll(t *testing.T) {
	src, fake := newTestSource(t, 0)

	items, err := src.ListAll(context.Background())
	require.NoError(t, err)
	fake.mu.Lock()
	assert.Equal(t, []string{"", "c2"}, fake.cursors)
	fake.mu.Unlock()

	got := byID(items)
	require.Len(t, got, 3, "trashed pages are skipped")

	row := got["p-row"]
	assert.Equal(t, "Acme deal", row.Title)
	assert.Equal(t, domain.KindStructuredRecord, row.Kind)
	assert.Equal(t, "db-1", row.ParentID)
	assert.ElementsMatch(t, []string{"sales", "q1"}, row.Tags)
	assert.Equal(t, map[string][]string{"Client": {"p-client"}}, row.RelationIDs)
	assert.Equal(t, "Call with [[p-jane|Jane Doe]] about [[Pricing]] and @ops.", row.Body)
	assert.Equal(t, "Call with Jane Doe about [[Pricing]] and @ops.", row.Summary)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), row.LastModified)
	assert.Equal(t, "https://notion.so/p-row", row.URL)
	require.NoError(t, row.Validate())

	db := got["db-1"]
	assert.Equal(t, "Deals", db.Title)
	assert.Equal(t, domain.KindContainer, db.Kind)
	assert.Equal(t, "p-home", db.ParentID)
	assert.Equal(t, "Pipeline of open deals.", db.Summary)

	home := got["p-home"]
	assert.Equal(t, domain.KindContainer, home.Kind, "a page holding a child database is a container")
	assert.Empty(t, home.ParentID)
}

func TestListChangedSinceStopsAtOlderItems(t *testing.T) {
	src, fake := newTestSource(t, 0)

	// 09:00:30 truncates to 09:00, so db-1 (edited 09:00) is re-read
	items, err := src.ListChangedSince(context.Background(), time.Date(2025, 3, 1, 9, 0, 30, 0, time.UTC))
	require.NoError(t, err)

	got := byID(items)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "p-row")
	assert.Contains(t, got, "db-1")
	assert.Equal(t, 2, fake.searchCount())

	items, err = src.ListChangedSince(context.Background(), time.Date(2025, 3, 1, 9, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, fake.searchCount(), "no need to read the second result page")
}

func TestFetchContent(t *testing.T) {
	src, _ := newTestSource(t, 0)
	ctx := context.Background()

	text, err := src.FetchContent(ctx, "p-home")
	require.NoError(t, err)
	assert.Equal(t, "Welcome\n\nDeals", text)

	text, err = src.FetchContent(ctx, "db-1")
	require.NoError(t, err)
	assert.Equal(t, "Deals\n\nPipeline of open deals.", text)

	_, err = src.FetchContent(ctx, "p-gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = src.FetchContent(ctx, "p-archived")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = src.FetchContent(ctx, "p-flaky")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestFetchContentCapsLength(t *testing.T) {
	src, _ := newTestSource(t, 4)

	text, err := src.FetchContent(context.Background(), "p-home")
	require.NoError(t, err)
	assert.Equal(t, "Welc", text)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{Token: "  "}, logger.Nop())
	assert.Error(t, err)
}

func TestBlockDecodingIgnoresUnknownTypes(t *testing.T) {
	var list blockList
	require.NoError(t, json.NewDecoder(strings.NewReader(`{"results": [
		{"id": "x", "type": "image", "image": {"type": "external", "external": {"url": "https://x"}}},
		{"id": "y", "type": "quote", "quote": {"rich_text": [{"type": "text", "plain_text": "q"}]}}
	]}`)).Decode(&list))
	require.Len(t, list.Results, 2)
	assert.Empty(t, list.Results[0].Text)
	assert.Equal(t, "q", plain(list.Results[1].Text, false))
}
