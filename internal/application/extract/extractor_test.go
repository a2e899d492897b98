package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/domain"
)

func rel(kind domain.RelationKind, src, dst string) domain.Relation {
	return domain.Relation{Kind: kind, Source: src, Target: dst}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name     string
		rule     func(*domain.RawItem) []domain.Relation
		raw      domain.RawItem
		expected []domain.Relation
	}{
		{
			name:     "hierarchy with parent",
			rule:     Hierarchy,
			raw:      domain.RawItem{ID: "p1", ParentID: "root"},
			expected: []domain.Relation{rel(domain.RelHierarchy, "p1", "root")},
		},
		{
			name: "hierarchy without parent",
			rule: Hierarchy,
			raw:  domain.RawItem{ID: "p1"},
		},
		{
			name: "cross references with alias and heading",
			rule: CrossReferences,
			raw:  domain.RawItem{ID: "p1", Body: "see [[Company Bio]] and [[Resume|my cv]] or [[Notes#Intro]]"},
			expected: []domain.Relation{
				rel(domain.RelCrossReference, "p1", "Company Bio"),
				rel(domain.RelCrossReference, "p1", "Resume"),
				rel(domain.RelCrossReference, "p1", "Notes"),
			},
		},
		{
			name: "structured links in field order",
			rule: StructuredLinks,
			raw: domain.RawItem{ID: "r1", RelationIDs: map[string][]string{
				"Project": {"p9"},
				"Owner":   {"u1", " "},
			}},
			expected: []domain.Relation{
				rel(domain.RelStructuredLink, "r1", "u1"),
				rel(domain.RelStructuredLink, "r1", "p9"),
			},
		},
		{
			name: "mentions skip emails and trailing dots",
			rule: Mentions,
			raw:  domain.RawItem{ID: "p1", Body: "ping @alice and @bob.smith. mail me at me@example.com"},
			expected: []domain.Relation{
				rel(domain.RelMention, "p1", "alice"),
				rel(domain.RelMention, "p1", "bob.smith"),
			},
		},
		{
			name: "tags point at shared tag nodes",
			rule: Tags,
			raw:  domain.RawItem{ID: "p1", Tags: []string{"career", " career", "work"}},
			expected: []domain.Relation{
				rel(domain.RelHasTag, "p1", "tag:career"),
				rel(domain.RelHasTag, "p1", "tag:work"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule(&tt.raw)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	raw := &domain.RawItem{
		ID:           "p1",
		Title:        "Resume",
		ParentID:     "root",
		Tags:         []string{"work", "career"},
		Body:         "[[Company Bio]] @alice [[Company Bio]] [[p1]]",
		RelationIDs:  map[string][]string{"Related": {"p2", "p3"}, "Self": {"p1"}},
		LastModified: time.Now(),
	}

	ex := New()
	first := ex.Extract(raw)
	second := ex.Extract(raw)

	require.Equal(t, first, second)
	assert.ElementsMatch(t, []domain.Relation{
		rel(domain.RelCrossReference, "p1", "Company Bio"),
		rel(domain.RelHasTag, "p1", "tag:career"),
		rel(domain.RelHasTag, "p1", "tag:work"),
		rel(domain.RelHierarchy, "p1", "root"),
		rel(domain.RelMention, "p1", "alice"),
		rel(domain.RelStructuredLink, "p1", "p2"),
		rel(domain.RelStructuredLink, "p1", "p3"),
	}, first)
}

func TestExtractCustomRule(t *testing.T) {
	extra := Rule{
		Kind: domain.RelationKind("SEE_ALSO"),
		Apply: func(raw *domain.RawItem) []domain.Relation {
			return []domain.Relation{rel("SEE_ALSO", raw.ID, "p42")}
		},
	}
	ex := New(append(DefaultRules(), extra)...)

	got := ex.Extract(&domain.RawItem{ID: "p1"})
	assert.Equal(t, []domain.Relation{rel("SEE_ALSO", "p1", "p42")}, got)
	assert.Len(t, ex.Kinds(), 6)
}
