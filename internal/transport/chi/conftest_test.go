package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	domanswer "github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	answeruc "github.com/kailas-cloud/contramate/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/contramate/internal/usecase/health"
)

type fakeAnswerer struct {
	mu      sync.Mutex
	answer  func(ctx context.Context, req answeruc.Request) (domanswer.Result, error)
	lastReq answeruc.Request
	calls   int
}

func (f *fakeAnswerer) Answer(ctx context.Context, req answeruc.Request) (domanswer.Result, error) {
	f.mu.Lock()
	f.lastReq = req
	f.calls++
	f.mu.Unlock()
	if f.answer == nil {
		return domanswer.Result{RequestID: "ans-1", Success: true}, nil
	}
	return f.answer(ctx, req)
}

type fakeSearcher struct {
	mu        sync.Mutex
	search    func(ctx context.Context, req *request.Request) ([]passage.Passage, error)
	document  func(ctx context.Context, doc scope.DocumentRef, size int) ([]passage.Passage, error)
	lastReq   request.Request
	lastDoc   scope.DocumentRef
	lastSize  int
	callCount int
}

func (f *fakeSearcher) Search(ctx context.Context, req *request.Request) ([]passage.Passage, error) {
	f.mu.Lock()
	f.lastReq = *req
	f.callCount++
	f.mu.Unlock()
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, req)
}

func (f *fakeSearcher) SearchDocument(ctx context.Context, doc scope.DocumentRef, size int) ([]passage.Passage, error) {
	f.mu.Lock()
	f.lastDoc = doc
	f.lastSize = size
	f.callCount++
	f.mu.Unlock()
	if f.document == nil {
		return nil, nil
	}
	return f.document(ctx, doc, size)
}

type fakeHealth struct {
	report healthuc.Report
}

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

type fixture struct {
	answers *fakeAnswerer
	search  *fakeSearcher
	health  *fakeHealth
	handler http.Handler
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		answers: &fakeAnswerer{},
		search:  &fakeSearcher{},
		health: &fakeHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{healthuc.ComponentSearch: healthuc.CheckOK},
		}},
	}
	f.handler = NewServer(f.answers, f.search, f.health, zap.NewNop(), opts).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeChat(t *testing.T, rr *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	var resp chatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	return resp
}

func psg(project, doc string, chunk int, score float64) passage.Passage {
	return passage.New(
		passage.ID{ProjectID: project, ReferenceDocID: doc, ChunkIndex: chunk},
		passage.Fields{
			DocumentTitle:    "Contract_" + doc + ".pdf",
			Content:          "The agreement terminates on notice.",
			ContractType:     "NDA",
			Source:           "system",
			SectionHierarchy: []string{"5", "5.2 Termination"},
		},
		score,
	)
}
