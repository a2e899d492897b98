package commands

import (
	"sort"
	"strings"

	"chimera/internal/domain"
)

// ScoredEntry wraps a result entry with its filter score
type ScoredEntry struct {
	domain.ResultEntry
	Score int
}

// FilterCommand narrows an answer set already on screen without another
// round trip through the pipeline
type FilterCommand struct {
	entries []domain.ResultEntry
	Query   string
}

// NewFilterCommand creates a new FilterCommand
func NewFilterCommand(entries []domain.ResultEntry, query string) *FilterCommand {
	return &FilterCommand{
		entries: entries,
		Query:   query,
	}
}

// Execute returns the matching entries, best match first. A query shorter
// than two characters keeps every entry in pipeline order.
func (c *FilterCommand) Execute() []domain.ResultEntry {
	if len(strings.TrimSpace(c.Query)) < 2 {
		return c.entries
	}
	scored := FuzzySort(c.entries, strings.TrimSpace(c.Query))
	out := make([]domain.ResultEntry, len(scored))
	for i, s := range scored {
		out[i] = s.ResultEntry
	}
	return out
}

// FuzzyScore calculates a relevance score for how well target matches query
func FuzzyScore(target, query string) int {
	target = strings.ToLower(target)
	query = strings.ToLower(query)

	if len(query) == 0 {
		return 0
	}

	// Check for exact substring match first (highest priority)
	if strings.Contains(target, query) {
		score := 100
		// Bonus if it starts with query
		if strings.HasPrefix(target, query) {
			score += 50
		}
		return score
	}

	// Fuzzy match: check if chars appear in order
	score := 0
	queryIdx := 0
	prevMatchIdx := -1

	for i := 0; i < len(target) && queryIdx < len(query); i++ {
		if target[i] == query[queryIdx] {
			if prevMatchIdx == i-1 {
				score += 10 // consecutive chars
			}
			if i == 0 {
				score += 15 // start of string
			}
			if i > 0 && (target[i-1] == ' ' || target[i-1] == '.' || target[i-1] == '-') {
				score += 10 // after separator
			}
			score += 1
			prevMatchIdx = i
			queryIdx++
		}
	}

	if queryIdx == len(query) {
		return score
	}
	return 0
}

// FuzzySort scores entries by title, id and tags and sorts them by
// relevance. Ties keep pipeline order.
func FuzzySort(entries []domain.ResultEntry, query string) []ScoredEntry {
	scored := make([]ScoredEntry, 0, len(entries))

	for _, e := range entries {
		best := max(FuzzyScore(e.Title, query), FuzzyScore(e.ID, query))
		for _, tag := range e.Tags {
			best = max(best, FuzzyScore(tag, query))
		}

		if best > 0 {
			scored = append(scored, ScoredEntry{
				ResultEntry: e,
				Score:       best,
			})
		}
	}

	// Sort by score descending
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}
