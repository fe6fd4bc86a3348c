package opensearch

import (
	"github.com/kailas-cloud/contramate/internal/db"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
)

// lexicalFields are the multi_match targets; content is boosted over headings.
var lexicalFields = []string{db.FieldContent + "^2", db.FieldSectionHierarchy}

// buildHybridBody renders the bool query: must holds the lexical and/or kNN clauses,
// filter holds the compiled term/terms clauses.
func buildHybridBody(q *db.HybridQuery, semanticWeight, textWeight float64) map[string]any {
	var should []any
	if q.Text != "" {
		should = append(should, map[string]any{
			"multi_match": map[string]any{
				"query":     q.Text,
				"fields":    lexicalFields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
				"boost":     textWeight,
			},
		})
	}
	if len(q.Vector) > 0 {
		should = append(should, map[string]any{
			"knn": map[string]any{
				db.FieldVector: map[string]any{
					"vector": q.Vector,
					"k":      q.K,
					"boost":  semanticWeight,
				},
			},
		})
	}

	return map[string]any{
		"size": q.K,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"bool": map[string]any{
							"should":               should,
							"minimum_should_match": 1,
						},
					},
				},
				"filter": buildFilter(q.Filter),
			},
		},
		"_source": sourceExcludes(),
	}
}

// buildListBody renders a filter-only query sorted by chunk index.
func buildListBody(q *db.ListQuery) map[string]any {
	return map[string]any{
		"from": q.Offset,
		"size": q.Limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": buildFilter(q.Filter),
			},
		},
		"sort": []any{
			map[string]any{db.FieldChunkIndex: map[string]any{"order": "asc"}},
		},
		"_source": sourceExcludes(),
	}
}

// buildFilter maps each clause to term (one value) or terms (several).
func buildFilter(c filter.Compiled) []any {
	out := make([]any, 0, c.Len())
	for _, cl := range c.Clauses() {
		switch cl.Kind() {
		case filter.Term:
			out = append(out, map[string]any{"term": map[string]any{cl.Field(): cl.Value()}})
		default:
			out = append(out, map[string]any{"terms": map[string]any{cl.Field(): cl.Values()}})
		}
	}
	return out
}

func sourceExcludes() map[string]any {
	return map[string]any{"excludes": []string{db.FieldVector}}
}
