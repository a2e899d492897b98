package extract

import (
	"regexp"
	"slices"
	"strings"

	"chimera/internal/domain"
)

// Wiki-style cross references: [[target]] or [[target|alias]]
var linkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)

// @-mentions: word characters, dashes and dots, not preceded by a word
// character so e-mail addresses are skipped
var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([\w][\w.\-]*)`)

// Rule derives one kind of edge from a raw snapshot. Rules are pure and
// independent; the extractor unions their output.
type Rule struct {
	Kind  domain.RelationKind
	Apply func(raw *domain.RawItem) []domain.Relation
}

// DefaultRules returns the five standard rules
func DefaultRules() []Rule {
	return []Rule{
		{Kind: domain.RelHierarchy, Apply: Hierarchy},
		{Kind: domain.RelCrossReference, Apply: CrossReferences},
		{Kind: domain.RelStructuredLink, Apply: StructuredLinks},
		{Kind: domain.RelMention, Apply: Mentions},
		{Kind: domain.RelHasTag, Apply: Tags},
	}
}

// Hierarchy emits one edge to the parent pointer, if present
func Hierarchy(raw *domain.RawItem) []domain.Relation {
	parent := strings.TrimSpace(raw.ParentID)
	if parent == "" {
		return nil
	}
	return []domain.Relation{{Kind: domain.RelHierarchy, Source: raw.ID, Target: parent}}
}

// CrossReferences emits one edge per [[reference]] in the body. Targets are
// reference text and still need resolving to an item id. A #heading or
// ^block suffix is dropped.
func CrossReferences(raw *domain.RawItem) []domain.Relation {
	var rels []domain.Relation
	for _, match := range linkPattern.FindAllStringSubmatch(raw.Body, -1) {
		target := match[1]
		if i := strings.IndexAny(target, "#^"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		rels = append(rels, domain.Relation{Kind: domain.RelCrossReference, Source: raw.ID, Target: target})
	}
	return rels
}

// StructuredLinks emits one edge per populated relation-typed field value
func StructuredLinks(raw *domain.RawItem) []domain.Relation {
	fields := make([]string, 0, len(raw.RelationIDs))
	for name := range raw.RelationIDs {
		fields = append(fields, name)
	}
	slices.Sort(fields)

	var rels []domain.Relation
	for _, name := range fields {
		for _, target := range raw.RelationIDs[name] {
			target = strings.TrimSpace(target)
			if target == "" {
				continue
			}
			rels = append(rels, domain.Relation{Kind: domain.RelStructuredLink, Source: raw.ID, Target: target})
		}
	}
	return rels
}

// Mentions emits one edge per @name marker in the body. Trailing dots are
// sentence punctuation, not part of the name.
func Mentions(raw *domain.RawItem) []domain.Relation {
	var rels []domain.Relation
	for _, match := range mentionPattern.FindAllStringSubmatch(raw.Body, -1) {
		name := strings.TrimRight(match[1], ".")
		if name == "" {
			continue
		}
		rels = append(rels, domain.Relation{Kind: domain.RelMention, Source: raw.ID, Target: name})
	}
	return rels
}

// Tags emits one HAS_TAG edge per tag, targeting the shared tag node
func Tags(raw *domain.RawItem) []domain.Relation {
	tags := domain.NormalizeTags(raw.Tags)
	rels := make([]domain.Relation, 0, len(tags))
	for _, tag := range tags {
		rels = append(rels, domain.Relation{Kind: domain.RelHasTag, Source: raw.ID, Target: domain.TagNodeID(tag)})
	}
	return rels
}
