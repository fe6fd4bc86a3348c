package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
)

// --- Mocks ---

type hybridCall struct {
	text   string
	vector []float32
	filter filter.Compiled
	k      int
}

type mockRepo struct {
	mu       sync.Mutex
	hybridFn func(call hybridCall) ([]passage.Passage, error)
	calls    []hybridCall

	listResult []passage.Passage
	listErr    error
	listFilter filter.Compiled
	listLimit  int
}

func (m *mockRepo) SearchHybrid(
	_ context.Context, text string, vector []float32, f filter.Compiled, k int,
) ([]passage.Passage, error) {
	call := hybridCall{text: text, vector: vector, filter: f, k: k}
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	if m.hybridFn == nil {
		return nil, nil
	}
	return m.hybridFn(call)
}

func (m *mockRepo) ListPassages(_ context.Context, f filter.Compiled, _, limit int) ([]passage.Passage, error) {
	m.listFilter = f
	m.listLimit = limit
	return m.listResult, m.listErr
}

type mockEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 7}, nil
}

func psg(project, doc string, chunk int, score float64) passage.Passage {
	return passage.New(
		passage.ID{ProjectID: project, ReferenceDocID: doc, ChunkIndex: chunk},
		passage.Fields{DocumentTitle: doc + ".pdf", Content: "text"},
		score,
	)
}

func mustRequest(t *testing.T, q string, m mode.Mode, sc scope.Filter, topK int, minScore float64) *request.Request {
	t.Helper()
	r, err := request.New(q, m, sc, topK, minScore)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &r
}

func mustScope(t *testing.T, docs ...scope.DocumentRef) scope.Filter {
	t.Helper()
	f, err := scope.New(docs, "", nil, nil)
	if err != nil {
		t.Fatalf("scope.New: %v", err)
	}
	return f
}

func ref(project, doc string) scope.DocumentRef {
	return scope.DocumentRef{ProjectID: project, ReferenceDocID: doc}
}

// --- Search ---

func TestSearch_Hybrid(t *testing.T) {
	repo := &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
		return []passage.Passage{psg("p", "a", 1, 0.4), psg("p", "a", 2, 0.9)}, nil
	}}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := New(repo, emb)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	got, err := svc.Search(ctx, mustRequest(t, "termination", mode.Hybrid, scope.Filter{}, 5, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.calls) != 1 {
		t.Fatalf("expected exactly one backend call, got %d", len(repo.calls))
	}
	call := repo.calls[0]
	if call.text != "termination" || len(call.vector) != 2 {
		t.Errorf("call = %+v", call)
	}
	if call.k != 5*request.CandidateFactor {
		t.Errorf("k = %d, want %d", call.k, 5*request.CandidateFactor)
	}
	if len(got) != 2 || got[0].ID().ChunkIndex != 2 {
		t.Errorf("expected score-descending order, got %v", got)
	}
	if usage.EmbeddingTokens != 7 {
		t.Errorf("EmbeddingTokens = %d, want 7", usage.EmbeddingTokens)
	}
}

func TestSearch_EmptyScopeSendsDefaultClause(t *testing.T) {
	repo := &mockRepo{}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	if _, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Hybrid, scope.Filter{}, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clauses := repo.calls[0].filter.Clauses()
	if len(clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(clauses))
	}
	if clauses[0].Field() != filter.FieldSource || clauses[0].Value() != string(scope.SourceSystem) {
		t.Errorf("clause = %s=%v", clauses[0].Field(), clauses[0].Values())
	}
}

func TestSearch_KeywordSkipsEmbedding(t *testing.T) {
	repo := &mockRepo{}
	emb := &mockEmbedder{vec: []float32{1}}
	svc := New(repo, emb)

	if _, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Keyword, scope.Filter{}, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times in keyword mode", emb.calls)
	}
	if repo.calls[0].vector != nil || repo.calls[0].text != "q" {
		t.Errorf("call = %+v", repo.calls[0])
	}
}

func TestSearch_SemanticOmitsText(t *testing.T) {
	repo := &mockRepo{}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	if _, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Semantic, scope.Filter{}, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls[0].text != "" {
		t.Errorf("semantic mode sent text %q", repo.calls[0].text)
	}
}

func TestSearch_PrecomputedVector(t *testing.T) {
	repo := &mockRepo{}
	emb := &mockEmbedder{vec: []float32{1}}
	svc := New(repo, emb)

	req := mustRequest(t, "q", mode.Hybrid, scope.Filter{}, 0, 0).WithVector([]float32{9, 9, 9})
	if _, err := svc.Search(context.Background(), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.calls != 0 {
		t.Error("embedder called despite supplied vector")
	}
	if len(repo.calls[0].vector) != 3 {
		t.Errorf("vector = %v", repo.calls[0].vector)
	}
}

func TestSearch_ScopeGuard(t *testing.T) {
	repo := &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
		return []passage.Passage{
			psg("p1", "a", 0, 0.9),
			psg("p1", "x", 0, 0.95), // outside scope
			psg("p1", "b", 0, 0.5),
		}, nil
	}}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	sc := mustScope(t, ref("p1", "a"), ref("p1", "b"))
	got, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Hybrid, sc, 10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range got {
		if p.ID().ReferenceDocID == "x" {
			t.Fatalf("passage outside scope returned: %v", p.ID())
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 passages, got %d", len(got))
	}
}

func TestSearch_DedupTieBreakMinScoreTopK(t *testing.T) {
	repo := &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
		return []passage.Passage{
			psg("p", "b", 1, 0.5),
			psg("p", "a", 1, 0.5),
			psg("p", "a", 1, 0.8), // duplicate, higher score wins
			psg("p", "c", 1, 0.1), // below min score
			psg("p", "d", 1, 0.5),
		}, nil
	}}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	got, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Hybrid, scope.Filter{}, 3, 0.2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"p-a-1", "p-b-1", "p-d-1"}
	if len(got) != len(want) {
		t.Fatalf("got %d passages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ID().RecordID() != w {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID().RecordID(), w)
		}
	}
	if got[0].Score() != 0.8 {
		t.Errorf("dedup kept score %f, want 0.8", got[0].Score())
	}
}

func TestSearch_DeterministicOrder(t *testing.T) {
	hits := []passage.Passage{psg("p", "c", 0, 0.5), psg("p", "a", 0, 0.5), psg("p", "b", 0, 0.5)}
	repo := &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
		return append([]passage.Passage(nil), hits...), nil
	}}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})
	req := mustRequest(t, "q", mode.Hybrid, scope.Filter{}, 10, 0)

	first, _ := svc.Search(context.Background(), req)
	for range 5 {
		again, _ := svc.Search(context.Background(), req)
		for i := range first {
			if first[i].ID() != again[i].ID() {
				t.Fatalf("order changed between calls")
			}
		}
	}
	if first[0].ID().ReferenceDocID != "a" {
		t.Errorf("tie not broken by record id: %v", first[0].ID())
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		repo   *mockRepo
		embErr error
	}{
		{"embedding failure", &mockRepo{}, errors.New("provider down")},
		{"backend unreachable", &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
			return nil, errors.New("connection refused")
		}}, nil},
		{"timeout", &mockRepo{hybridFn: func(hybridCall) ([]passage.Passage, error) {
			return nil, context.DeadlineExceeded
		}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(tt.repo, &mockEmbedder{vec: []float32{1}, err: tt.embErr})
			got, err := svc.Search(context.Background(), mustRequest(t, "q", mode.Hybrid, scope.Filter{}, 0, 0))
			if err == nil {
				t.Fatal("expected error")
			}
			if got != nil {
				t.Error("expected nil passages on error")
			}
			if !errors.Is(err, domain.ErrSearch) {
				t.Errorf("expected ErrSearch, got %v", err)
			}
			var se *domain.SearchError
			if !errors.As(err, &se) {
				t.Errorf("expected *SearchError, got %T", err)
			}
		})
	}
}

// --- CompareDocuments ---

func TestCompareDocuments_OneEmbeddingPerCall(t *testing.T) {
	repo := &mockRepo{hybridFn: func(c hybridCall) ([]passage.Passage, error) {
		docs := c.filter.Clauses()[0].Values()
		if len(docs) != 1 {
			return nil, fmt.Errorf("expected single-document filter, got %v", docs)
		}
		switch docs[0] {
		case "p-a":
			return []passage.Passage{psg("p", "a", 0, 0.9), psg("p", "a", 1, 0.8), psg("p", "a", 2, 0.7)}, nil
		case "p-b":
			return []passage.Passage{psg("p", "b", 0, 0.2)}, nil
		}
		return nil, nil
	}}
	emb := &mockEmbedder{vec: []float32{1}}
	svc := New(repo, emb)

	sc := mustScope(t, ref("p", "a"), ref("p", "b"))
	got, err := svc.CompareDocuments(context.Background(), mustRequest(t, "q", mode.Hybrid, sc, 10, 0), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if emb.calls != 1 {
		t.Errorf("expected 1 embedding call, got %d", emb.calls)
	}
	if len(repo.calls) != 2 {
		t.Errorf("expected 1 backend call per document, got %d", len(repo.calls))
	}

	var fromB bool
	for _, p := range got {
		if p.ID().ReferenceDocID == "b" {
			fromB = true
		}
	}
	if !fromB {
		t.Error("low-scoring document crowded out")
	}
	if len(got) != 3 {
		t.Errorf("expected 2 from a + 1 from b, got %d", len(got))
	}
}

// perDocumentRepo answers every single-document query with n hits of that document.
func perDocumentRepo(n int) *mockRepo {
	return &mockRepo{hybridFn: func(c hybridCall) ([]passage.Passage, error) {
		doc := strings.TrimPrefix(c.filter.Clauses()[0].Values()[0], "p-")
		hits := make([]passage.Passage, n)
		for i := range hits {
			hits[i] = psg("p", doc, i, 0.9-float64(i)*0.1)
		}
		return hits, nil
	}}
}

func TestCompareDocuments_MoreDocumentsThanTopK(t *testing.T) {
	repo := perDocumentRepo(1)
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	docs := make([]scope.DocumentRef, 12)
	for i := range docs {
		docs[i] = ref("p", fmt.Sprintf("d%02d", i))
	}
	req := mustRequest(t, "q", mode.Hybrid, mustScope(t, docs...), 10, 0)

	got, err := svc.CompareDocuments(context.Background(), req, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected top-K=10 passages, got %d", len(got))
	}
	for _, c := range repo.calls {
		if c.k != request.CandidateFactor {
			t.Errorf("expected per-document k=%d, got %d", request.CandidateFactor, c.k)
		}
	}
}

func TestCompareDocuments_QuotaCappedByTopK(t *testing.T) {
	repo := perDocumentRepo(5)
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	sc := mustScope(t, ref("p", "a"), ref("p", "b"), ref("p", "c"))
	got, err := svc.CompareDocuments(context.Background(), mustRequest(t, "q", mode.Hybrid, sc, 10, 0), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > 10 {
		t.Fatalf("top-K exceeded: %d > 10", len(got))
	}

	perDoc := map[string]int{}
	for _, p := range got {
		perDoc[p.ID().ReferenceDocID]++
	}
	for _, d := range []string{"a", "b", "c"} {
		if perDoc[d] != 3 {
			t.Errorf("document %s: expected 3 passages, got %d", d, perDoc[d])
		}
	}
}

func TestCompareDocuments_SingleDocumentFallsBack(t *testing.T) {
	repo := &mockRepo{}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	sc := mustScope(t, ref("p", "a"))
	if _, err := svc.CompareDocuments(context.Background(), mustRequest(t, "q", mode.Hybrid, sc, 10, 0), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.calls) != 1 || repo.calls[0].k != 10*request.CandidateFactor {
		t.Errorf("calls = %+v", repo.calls)
	}
}

func TestCompareDocuments_Error(t *testing.T) {
	repo := &mockRepo{hybridFn: func(c hybridCall) ([]passage.Passage, error) {
		if c.filter.Clauses()[0].Value() == "p-b" {
			return nil, errors.New("shard failure")
		}
		return nil, nil
	}}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	sc := mustScope(t, ref("p", "a"), ref("p", "b"))
	_, err := svc.CompareDocuments(context.Background(), mustRequest(t, "q", mode.Hybrid, sc, 10, 0), 0)
	if !errors.Is(err, domain.ErrSearch) {
		t.Fatalf("expected ErrSearch, got %v", err)
	}
}

// --- Listing ---

func TestSearchDocument(t *testing.T) {
	repo := &mockRepo{listResult: []passage.Passage{psg("p", "a", 2, 0), psg("p", "a", 0, 0), psg("p", "a", 1, 0)}}
	svc := New(repo, &mockEmbedder{})

	got, err := svc.SearchDocument(context.Background(), ref("p", "a"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, p := range got {
		if p.ID().ChunkIndex != i {
			t.Errorf("got[%d].ChunkIndex = %d", i, p.ID().ChunkIndex)
		}
	}
	if repo.listLimit != DefaultListSize {
		t.Errorf("limit = %d", repo.listLimit)
	}
	clauses := repo.listFilter.Clauses()
	if len(clauses) != 1 || clauses[0].Field() != filter.FieldDocument || clauses[0].Value() != "p-a" {
		t.Errorf("filter = %+v", clauses)
	}
}

func TestSearchDocument_Invalid(t *testing.T) {
	svc := New(&mockRepo{}, &mockEmbedder{})
	_, err := svc.SearchDocument(context.Background(), ref("", "a"), 10)
	if !errors.Is(err, domain.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestSearchDocument_BackendError(t *testing.T) {
	svc := New(&mockRepo{listErr: errors.New("down")}, &mockEmbedder{})
	_, err := svc.SearchDocument(context.Background(), ref("p", "a"), 5000)
	if !errors.Is(err, domain.ErrSearch) {
		t.Fatalf("expected ErrSearch, got %v", err)
	}
}

func TestSearchProject(t *testing.T) {
	repo := &mockRepo{}
	svc := New(repo, &mockEmbedder{vec: []float32{1}})

	if _, err := svc.SearchProject(context.Background(), "p1", "", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.calls) != 0 || repo.listFilter.Clauses()[0].Field() != filter.FieldProjectID {
		t.Errorf("empty query should list, filter = %+v", repo.listFilter.Clauses())
	}

	if _, err := svc.SearchProject(context.Background(), "p1", "indemnity", mode.Keyword, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.calls) != 1 {
		t.Fatalf("expected one search call, got %d", len(repo.calls))
	}
	c := repo.calls[0].filter.Clauses()
	if len(c) != 1 || c[0].Field() != filter.FieldProjectID || c[0].Value() != "p1" {
		t.Errorf("filter = %+v", c)
	}
}
