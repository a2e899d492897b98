package neo4jdb

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"chimera/internal/domain"
)

// recordGetter is the part of *neo4j.Record the decoders need
type recordGetter interface {
	Get(key string) (any, bool)
}

var _ recordGetter = (*neo4j.Record)(nil)

func recordItem(rec recordGetter) domain.IndexedItem {
	item := domain.IndexedItem{
		ID:          stringField(rec, "id"),
		Title:       stringField(rec, "title"),
		Kind:        domain.ParseItemKind(stringField(rec, "kind")),
		Tags:        stringSliceField(rec, "tags"),
		Embedding:   float32SliceField(rec, "embedding"),
		ExternalURL: stringField(rec, "url"),
	}
	if ns := int64Field(rec, "last_modified"); ns != 0 {
		item.LastModified = time.Unix(0, ns).UTC()
	}
	return item
}

func stringField(rec recordGetter, key string) string {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func int64Field(rec recordGetter, key string) int64 {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func intField(rec recordGetter, key string) int {
	return int(int64Field(rec, key))
}

func floatField(rec recordGetter, key string) float64 {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func stringSliceField(rec recordGetter, key string) []string {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return nil
	}
	slice, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func float32SliceField(rec recordGetter, key string) []float32 {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return nil
	}
	slice, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(slice))
	for _, v := range slice {
		switch f := v.(type) {
		case float64:
			out = append(out, float32(f))
		case int64:
			out = append(out, float32(f))
		}
	}
	return out
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
