package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chimera/internal/adapters/httpapi"
	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

const (
	searchPageSize = 100
	blockPageSize  = 100
)

// Options configures the Notion source
type Options struct {
	Token           string
	BaseURL         string
	Version         string
	RateLimit       float64 // requests per second
	MaxContentChars int     // cap on FetchContent text, 0 for no cap
	SnapshotBlocks  int     // blocks read per item for relation extraction
	Timeout         time.Duration
	Retry           retry.Policy
}

// Source reads pages and databases through the Notion HTTP API. Pages
// become leaf items, or containers when they hold child pages; database
// rows become structured records; databases are containers.
type Source struct {
	log      *logger.Logger
	api      *httpapi.Client
	maxChars int
	blocks   int
}

var _ ports.DocumentSource = (*Source)(nil)

// New builds a source. The token is required.
func New(opts Options, log *logger.Logger) (*Source, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("notion: missing integration token")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.notion.com"
	}
	if opts.Version == "" {
		opts.Version = "2022-06-28"
	}
	if opts.SnapshotBlocks <= 0 {
		opts.SnapshotBlocks = 50
	}

	return &Source{
		log: log.With("source", "notion"),
		api: httpapi.New(httpapi.Options{
			Name:    "notion",
			BaseURL: opts.BaseURL,
			Headers: map[string]string{
				"Authorization":  "Bearer " + opts.Token,
				"Notion-Version": opts.Version,
			},
			RateLimit: opts.RateLimit,
			Timeout:   opts.Timeout,
			Retry:     opts.Retry,
		}, log),
		maxChars: opts.MaxContentChars,
		blocks:   min(opts.SnapshotBlocks, blockPageSize),
	}, nil
}

func (s *Source) Name() string { return "notion" }

// ListAll returns every live page and database the integration can see
func (s *Source) ListAll(ctx context.Context) ([]domain.RawItem, error) {
	return s.list(ctx, time.Time{})
}

// ListChangedSince returns items edited at or after since. Notion rounds
// edit times down to the minute, so the bound is truncated to match and
// items edited in the same minute as the last run are read again.
func (s *Source) ListChangedSince(ctx context.Context, since time.Time) ([]domain.RawItem, error) {
	return s.list(ctx, since.Truncate(time.Minute))
}

// list walks search results newest first and stops at the first object
// older than since
func (s *Source) list(ctx context.Context, since time.Time) ([]domain.RawItem, error) {
	req := searchRequest{
		Sort:     &searchSort{Direction: "descending", Timestamp: "last_edited_time"},
		PageSize: searchPageSize,
	}

	var items []domain.RawItem
	for {
		var resp searchResponse
		if err := s.api.Do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
			return nil, fmt.Errorf("notion search: %w", err)
		}

		for i := range resp.Results {
			obj := &resp.Results[i]
			if !since.IsZero() && obj.LastEditedTime.Before(since) {
				s.log.Debug("listed changed items", "count", len(items), "since", since)
				return items, nil
			}
			if obj.gone() {
				continue
			}
			raw, err := s.snapshot(ctx, obj)
			if err != nil {
				return nil, err
			}
			items = append(items, raw)
		}

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		req.StartCursor = *resp.NextCursor
	}
	s.log.Debug("listed items", "count", len(items), "since", since)
	return items, nil
}

// snapshot turns a search result into a RawItem, reading the first blocks
// of a page for relation extraction
func (s *Source) snapshot(ctx context.Context, obj *object) (domain.RawItem, error) {
	raw := domain.RawItem{
		ID:           obj.ID,
		Title:        obj.title(),
		Tags:         obj.tags(),
		ParentID:     obj.parentID(),
		RelationIDs:  obj.relations(),
		LastModified: obj.LastEditedTime.UTC(),
		URL:          obj.URL,
	}

	if obj.Object == "database" {
		raw.Kind = domain.KindContainer
		raw.Body = plain(obj.Description, true)
		raw.Summary = domain.Summarize(raw.Body, domain.SummaryRunes)
		return raw, nil
	}

	raw.Kind = domain.KindLeaf
	if obj.Parent.Type == "database_id" {
		raw.Kind = domain.KindStructuredRecord
	}

	list, err := s.children(ctx, obj.ID, "", s.blocks)
	if err != nil {
		return domain.RawItem{}, fmt.Errorf("notion blocks %s: %w", obj.ID, err)
	}
	lines := make([]string, 0, len(list.Results))
	for _, b := range list.Results {
		if b.isChildContainer() && raw.Kind == domain.KindLeaf {
			raw.Kind = domain.KindContainer
		}
		if text := plain(b.Text, true); text != "" {
			lines = append(lines, text)
		}
	}
	raw.Body = strings.Join(lines, "\n\n")
	raw.Summary = domain.Summarize(plainBody(list.Results), domain.SummaryRunes)
	return raw, nil
}

// FetchContent returns the live text of a page, or the description of a
// database. Archived, trashed and unshared items are not found.
func (s *Source) FetchContent(ctx context.Context, id string) (string, error) {
	var page object
	err := s.api.Do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil, &page)
	switch httpapi.StatusCode(err) {
	case 0:
	case http.StatusNotFound:
		return "", &domain.NotFoundError{ID: id}
	case http.StatusBadRequest:
		// Databases are not pages
		return s.fetchDatabase(ctx, id)
	}
	if err != nil {
		return "", fmt.Errorf("notion page %s: %w", id, err)
	}
	if page.gone() {
		return "", &domain.NotFoundError{ID: id}
	}

	var sb strings.Builder
	cursor := ""
	for {
		list, err := s.children(ctx, id, cursor, blockPageSize)
		if httpapi.StatusCode(err) == http.StatusNotFound {
			return "", &domain.NotFoundError{ID: id}
		}
		if err != nil {
			return "", fmt.Errorf("notion blocks %s: %w", id, err)
		}
		for _, b := range list.Results {
			text := plain(b.Text, false)
			if text == "" && b.isChildContainer() {
				text = b.Title
			}
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)
		}
		if s.maxChars > 0 && sb.Len() >= s.maxChars {
			break
		}
		if !list.HasMore || list.NextCursor == nil {
			break
		}
		cursor = *list.NextCursor
	}
	return capRunes(sb.String(), s.maxChars), nil
}

func (s *Source) fetchDatabase(ctx context.Context, id string) (string, error) {
	var db object
	err := s.api.Do(ctx, http.MethodGet, "/v1/databases/"+url.PathEscape(id), nil, &db)
	if code := httpapi.StatusCode(err); code == http.StatusNotFound || code == http.StatusBadRequest {
		return "", &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("notion database %s: %w", id, err)
	}
	if db.gone() {
		return "", &domain.NotFoundError{ID: id}
	}
	text := db.title()
	if desc := plain(db.Description, false); desc != "" {
		text += "\n\n" + desc
	}
	return capRunes(text, s.maxChars), nil
}

func (s *Source) children(ctx context.Context, id, cursor string, size int) (blockList, error) {
	q := url.Values{}
	q.Set("page_size", fmt.Sprint(size))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var list blockList
	err := s.api.Do(ctx, http.MethodGet, "/v1/blocks/"+url.PathEscape(id)+"/children?"+q.Encode(), nil, &list)
	return list, err
}

func plainBody(blocks []block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if text := plain(b.Text, false); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func capRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
