package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ItemKind mirrors the external source's object taxonomy
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindContainer
	KindLeaf
	KindStructuredRecord
)

func (k ItemKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindLeaf:
		return "leaf"
	case KindStructuredRecord:
		return "structured-record"
	default:
		return "unknown"
	}
}

// ParseItemKind converts the stored string form back to an ItemKind
func ParseItemKind(s string) ItemKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "container":
		return KindContainer
	case "leaf":
		return KindLeaf
	case "structured-record":
		return KindStructuredRecord
	default:
		return KindUnknown
	}
}

// IndexedItem is one unit of external content mirrored into the graph index.
// It never carries body content.
type IndexedItem struct {
	ID           string // Stable identifier from the external source (primary key)
	Title        string
	Kind         ItemKind
	Tags         []string
	Embedding    []float32 // nil until the first successful embedding call
	LastModified time.Time
	ExternalURL  string
}

// HasEmbedding reports whether the item has been embedded
func (i *IndexedItem) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// RawItem is the metadata snapshot of one item as returned by the external
// source. Body is transient: it feeds relation extraction and is never
// written to the index.
type RawItem struct {
	ID           string
	Title        string
	Kind         ItemKind
	Tags         []string
	ParentID     string
	Body         string
	Summary      string
	RelationIDs  map[string][]string // relation-typed field name -> target ids
	LastModified time.Time
	URL          string
}

// Indexed projects the raw snapshot onto the fields the index may store
func (r *RawItem) Indexed() *IndexedItem {
	return &IndexedItem{
		ID:           r.ID,
		Title:        r.Title,
		Kind:         r.Kind,
		Tags:         NormalizeTags(r.Tags),
		LastModified: r.LastModified,
		ExternalURL:  r.URL,
	}
}

// EmbeddingText returns the text an item's embedding is derived from
func (r *RawItem) EmbeddingText() string {
	text := strings.TrimSpace(r.Title)
	if s := strings.TrimSpace(r.Summary); s != "" {
		text += "\n" + s
	}
	if len(r.Tags) > 0 {
		text += "\n" + strings.Join(NormalizeTags(r.Tags), ", ")
	}
	return text
}

// Validate checks the invariants every snapshot must satisfy before it may
// be written
func (r *RawItem) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("raw item: empty id")
	}
	if strings.HasPrefix(r.ID, TagNodePrefix) {
		return fmt.Errorf("raw item %s: id collides with tag namespace", r.ID)
	}
	if r.LastModified.IsZero() {
		return fmt.Errorf("raw item %s: missing last modified time", r.ID)
	}
	return nil
}

// SummaryRunes bounds the summary sources derive from a body
const SummaryRunes = 280

// Summarize returns the first non-blank paragraph of body, cut to n runes
func Summarize(body string, n int) string {
	for para := range strings.SplitSeq(body, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		if r := []rune(para); len(r) > n {
			return string(r[:n])
		}
		return para
	}
	return ""
}

// NormalizeTags trims, drops empties and deduplicates tags, returning them sorted
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
