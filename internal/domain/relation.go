package domain

import (
	"cmp"
	"slices"
	"strings"
)

// RelationKind is the type of a derived edge
type RelationKind string

const (
	RelHierarchy      RelationKind = "HIERARCHY"
	RelCrossReference RelationKind = "CROSS_REFERENCE"
	RelStructuredLink RelationKind = "STRUCTURED_LINK"
	RelMention        RelationKind = "MENTION"
	RelHasTag         RelationKind = "HAS_TAG"
)

// AllRelationKinds lists every edge kind, in a stable order
var AllRelationKinds = []RelationKind{
	RelHierarchy,
	RelCrossReference,
	RelStructuredLink,
	RelMention,
	RelHasTag,
}

// ParseRelationKind returns the kind for s, or false if s is not a known kind
func ParseRelationKind(s string) (RelationKind, bool) {
	k := RelationKind(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(AllRelationKinds, k) {
		return k, true
	}
	return "", false
}

// NeedsResolution reports whether targets of this kind are free-text
// references that must be resolved to an item id before being stored
func (k RelationKind) NeedsResolution() bool {
	return k == RelCrossReference || k == RelMention
}

// TagNodePrefix namespaces tag pseudo-node ids away from item ids
const TagNodePrefix = "tag:"

// TagNodeID returns the node id of the shared pseudo-node for a tag label
func TagNodeID(label string) string {
	return TagNodePrefix + strings.TrimSpace(label)
}

// IsTagNode reports whether id names a tag pseudo-node
func IsTagNode(id string) bool {
	return strings.HasPrefix(id, TagNodePrefix)
}

// TagLabel returns the label of a tag pseudo-node id
func TagLabel(id string) string {
	return strings.TrimPrefix(id, TagNodePrefix)
}

// Relation is a directed, typed edge. For HAS_TAG the target is a tag node id.
type Relation struct {
	Kind   RelationKind
	Source string
	Target string
}

// CompareRelations orders relations by source, kind, then target
func CompareRelations(a, b Relation) int {
	return cmp.Or(
		cmp.Compare(a.Source, b.Source),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Target, b.Target),
	)
}

// SortRelations sorts in place and removes duplicates
func SortRelations(rels []Relation) []Relation {
	slices.SortFunc(rels, CompareRelations)
	return slices.Compact(rels)
}

// Hop is one node reached by a graph traversal
type Hop struct {
	Seed  string       // Starting node the hop was reached from
	ID    string       // Node reached (item id or tag node id)
	Depth int          // Number of edges from Seed, >= 1
	Via   RelationKind // Kind of the last edge taken
}

// Neighbor is an edge seen from one endpoint during traversal
type Neighbor struct {
	ID   string
	Kind RelationKind
}
