package extract

import "chimera/internal/domain"

// Extractor unions the output of a set of rules
type Extractor struct {
	rules []Rule
}

// New creates an extractor. With no rules it uses DefaultRules.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Extract derives the complete outgoing edge set of raw. The result is
// deduplicated, sorted and free of self-edges, so identical input always
// yields identical output.
func (e *Extractor) Extract(raw *domain.RawItem) []domain.Relation {
	var rels []domain.Relation
	for _, rule := range e.rules {
		for _, rel := range rule.Apply(raw) {
			if rel.Target == "" || rel.Target == raw.ID {
				continue
			}
			rels = append(rels, rel)
		}
	}
	return domain.SortRelations(rels)
}

// Kinds lists the relation kinds this extractor produces
func (e *Extractor) Kinds() []domain.RelationKind {
	kinds := make([]domain.RelationKind, 0, len(e.rules))
	for _, r := range e.rules {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}
