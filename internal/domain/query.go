package domain

import (
	"cmp"
	"slices"
	"time"
)

// Intent is the structured form of a free-text query
type Intent struct {
	Query    string
	Keywords []string
	Topics   []string
}

// QueryCandidate is a transient, per-query recall hit. Never persisted.
type QueryCandidate struct {
	ID           string
	Title        string
	URL          string
	Tags         []string
	LastModified time.Time
	RecallScore  float64
	Confidence   *float64 // nil when the confidence stage did not score it
	Depth        int      // 0 for a direct embedding hit, >0 when reached by traversal
}

// ConfidenceKnown reports whether the candidate carries a confidence score
func (c *QueryCandidate) ConfidenceKnown() bool {
	return c.Confidence != nil
}

// CompareCandidates orders by recall score desc, then LastModified desc,
// then id asc
func CompareCandidates(a, b QueryCandidate) int {
	if a.RecallScore != b.RecallScore {
		if a.RecallScore > b.RecallScore {
			return -1
		}
		return 1
	}
	if !a.LastModified.Equal(b.LastModified) {
		return b.LastModified.Compare(a.LastModified)
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortCandidates sorts candidates into recall order
func SortCandidates(cs []QueryCandidate) {
	slices.SortStableFunc(cs, CompareCandidates)
}

// Related node kinds
const (
	RelatedKindItem = "item"
	RelatedKindTag  = "tag"
)

// RelatedItem is a one-hop neighbour surfaced next to a result, id and
// title only
type RelatedItem struct {
	ID    string
	Title string
	Depth int
	Kind  string       // RelatedKindItem or RelatedKindTag
	Via   RelationKind // Edge kind connecting it to the result
}

// ResultEntry is one ranked answer in a StructuredResult
type ResultEntry struct {
	ID                string
	Title             string
	URL               string
	Confidence        float64
	ConfidenceKnown   bool
	RecallScore       float64
	Tags              []string
	ContentPreview    string
	ContentAvailable  bool
	UnavailableReason string
	RelatedItems      []RelatedItem
}

// StructuredResult is the answer set returned to a querying client
type StructuredResult struct {
	QueryID    string
	ClientID   string
	Query      string
	Keywords   []string
	Topics     []string
	Degraded   bool // Confidence stage passed recall order through unscored
	Candidates []ResultEntry
	Elapsed    time.Duration
}

// Empty reports whether nothing matched
func (r *StructuredResult) Empty() bool {
	return len(r.Candidates) == 0
}
