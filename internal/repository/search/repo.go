package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/contramate/internal/db"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

// Repo implements usecase/search.Repository over one passage index.
type Repo struct {
	store store
	index string
}

// New creates a search repository bound to an index.
func New(s store, index string) *Repo {
	return &Repo{store: s, index: index}
}

// SearchHybrid issues one backend query and maps hits to passages.
func (r *Repo) SearchHybrid(
	ctx context.Context, text string, vector []float32, f filter.Compiled, k int,
) ([]passage.Passage, error) {
	sr, err := r.store.SearchHybrid(ctx, &db.HybridQuery{
		IndexName: r.index,
		Text:      text,
		Vector:    vector,
		Filter:    f,
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("search hybrid %s: %w", r.index, err)
	}
	return toPassages(sr), nil
}

// ListPassages returns passages matching the filter in chunk order.
func (r *Repo) ListPassages(
	ctx context.Context, f filter.Compiled, offset, limit int,
) ([]passage.Passage, error) {
	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName: r.index,
		Filter:    f,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search list %s: %w", r.index, err)
	}
	return toPassages(sr), nil
}

// toPassages drops hits that lack identity fields.
func toPassages(sr *db.SearchResult) []passage.Passage {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]passage.Passage, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		p, ok := toPassage(e)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func toPassage(e db.SearchEntry) (passage.Passage, bool) {
	f := e.Fields
	projectID, docID := f[db.FieldProjectID], f[db.FieldReferenceDocID]
	if projectID == "" || docID == "" {
		return passage.Passage{}, false
	}
	chunk, err := strconv.ParseFloat(f[db.FieldChunkIndex], 64)
	if err != nil {
		return passage.Passage{}, false
	}

	var sections []string
	if s := f[db.FieldSectionHierarchy]; s != "" {
		sections = strings.Split(s, db.SectionSeparator)
	}

	id := passage.ID{ProjectID: projectID, ReferenceDocID: docID, ChunkIndex: int(chunk)}
	return passage.New(id, passage.Fields{
		DocumentTitle:    f[db.FieldDocumentTitle],
		DisplayName:      f[db.FieldDisplayName],
		Content:          f[db.FieldContent],
		ContractType:     f[db.FieldContractType],
		Source:           f[db.FieldContentSource],
		SectionHierarchy: sections,
	}, e.Score), true
}
