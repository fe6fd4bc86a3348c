package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/contramate/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hybridFn func(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error)
	listFn   func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

func (m *mockStore) SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error) {
	if m.hybridFn != nil {
		return m.hybridFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "contracts"), ms
}

func entry(project, doc, chunk string, score float64) db.SearchEntry {
	return db.SearchEntry{
		Key:   project + "-" + doc + "-" + chunk,
		Score: score,
		Fields: map[string]string{
			db.FieldProjectID:        project,
			db.FieldReferenceDocID:   doc,
			db.FieldChunkIndex:       chunk,
			db.FieldDocumentTitle:    "Contract_" + doc + ".pdf",
			db.FieldContent:          "text of " + chunk,
			db.FieldContentSource:    "system",
			db.FieldSectionHierarchy: "1 Definitions > 1.1 Term",
		},
	}
}
