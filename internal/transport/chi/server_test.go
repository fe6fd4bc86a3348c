package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/kailas-cloud/contramate/internal/domain"
	domanswer "github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	answeruc "github.com/kailas-cloud/contramate/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/contramate/internal/usecase/health"
)

func TestChat_Success(t *testing.T) {
	f := newFixture(Options{})
	f.answers.answer = func(ctx context.Context, _ answeruc.Request) (domanswer.Result, error) {
		domain.UsageFromContext(ctx).AddEmbeddingTokens(7)
		domain.UsageFromContext(ctx).AddGenerationTokens(42)
		return domanswer.Result{
			RequestID: "ans-1",
			Success:   true,
			Answer:    "Either party may terminate on 30 days notice [doc1].",
			Citations: citation.Map{"doc1": "Contract_A.pdf-3"},
			Attempts:  1,
			Passages:  []passage.Passage{psg("p", "a", 3, 0.9)},
		}, nil
	}

	rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{"query": "How can the contract be terminated?"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("X-Embedding-Tokens") != "7" || rr.Header().Get("X-Generation-Tokens") != "42" {
		t.Errorf("usage headers = %q / %q",
			rr.Header().Get("X-Embedding-Tokens"), rr.Header().Get("X-Generation-Tokens"))
	}

	resp := decodeChat(t, rr)
	if !resp.Success || resp.Error != nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Citations["doc1"] != "Contract_A.pdf-3" {
		t.Errorf("citations = %v", resp.Citations)
	}
	if resp.Metadata.RequestID != "ans-1" || resp.Metadata.Attempts != 1 || resp.Metadata.Passages != 1 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
	if resp.Metadata.FiltersApplied {
		t.Error("filters_applied should be false without filters")
	}
}

func TestChat_ForwardsScopeAndHistory(t *testing.T) {
	f := newFixture(Options{})

	rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"query": "Compare the termination clauses",
		"filters": map[string]any{
			"documents": []map[string]string{
				{"project_id": "p1", "reference_doc_id": "a"},
				{"project_id": "p1", "reference_doc_id": "b"},
			},
			"doc_source":    "upload",
			"contract_type": []string{"NDA"},
		},
		"message_history": []map[string]string{
			{"role": "user", "content": "Hi"},
			{"role": "assistant", "content": "Hello"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	got := f.answers.lastReq
	if len(got.Scope.Documents()) != 2 || got.Scope.Source() != scope.SourceUpload {
		t.Errorf("scope = %+v", got.Scope)
	}
	if len(got.History) != 2 || got.History[0].Role != chat.RoleUser || got.History[1].Content != "Hello" {
		t.Errorf("history = %+v", got.History)
	}
	if !decodeChat(t, rr).Metadata.FiltersApplied {
		t.Error("filters_applied should be true")
	}
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode ErrorCode
		wantMsg  string
	}{
		{"malformed json", `{"query":`, CodeBadRequest, "invalid request body"},
		{"missing query", map[string]any{}, CodeValidationFailed, "query"},
		{"unknown source", map[string]any{
			"query": "q", "filters": map[string]any{"doc_source": "private"},
		}, CodeValidationFailed, "doc_source"},
		{"document without id", map[string]any{
			"query": "q", "filters": map[string]any{
				"documents": []map[string]string{{"project_id": "p"}},
			},
		}, CodeValidationFailed, "reference_doc_id"},
		{"system history turn", map[string]any{
			"query": "q", "message_history": []map[string]string{{"role": "system", "content": "x"}},
		}, CodeValidationFailed, "role"},
		{"blank contract type", map[string]any{
			"query": "q", "filters": map[string]any{"contract_type": []string{" "}},
		}, CodeValidationFailed, "contract_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{})
			rr := f.do(t, http.MethodPost, "/v1/chat", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
			}
			resp := decodeChat(t, rr)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("resp = %+v", resp)
			}
			if !strings.Contains(resp.Error.Message, tt.wantMsg) {
				t.Errorf("message = %q, want substring %q", resp.Error.Message, tt.wantMsg)
			}
			if f.answers.calls != 0 {
				t.Error("answerer must not be called")
			}
		})
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"uncited answer", &domain.ResponseValidationError{
			Reason: "missing_citations", Attempts: 3, LastAnswer: "made up",
		}, http.StatusUnprocessableEntity, CodeUncitedAnswer},
		{"search", domain.NewSearchError("query backend", errors.New("connection refused")),
			http.StatusBadGateway, CodeSearchFailed},
		{"embedding under search", domain.NewSearchError("vectorize query",
			fmt.Errorf("embed: %w", domain.ErrEmbeddingProviderError)),
			http.StatusBadGateway, CodeEmbeddingProvider},
		{"generation", domain.NewGenerationError("gpt", errors.New("bad gateway")),
			http.StatusBadGateway, CodeGenerationFailed},
		{"generation timeout", domain.NewGenerationError("gpt",
			fmt.Errorf("chat completion: %w", context.DeadlineExceeded)),
			http.StatusGatewayTimeout, CodeTimeout},
		{"client canceled", fmt.Errorf("answer cycle interrupted: %w", context.Canceled),
			StatusClientClosedRequest, CodeCanceled},
		{"canceled under generation", domain.NewGenerationError("gpt",
			fmt.Errorf("chat completion: %w", context.Canceled)),
			StatusClientClosedRequest, CodeCanceled},
		{"invalid request", fmt.Errorf("%w: query is required", domain.ErrInvalidRequest),
			http.StatusBadRequest, CodeValidationFailed},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{})
			f.answers.answer = func(context.Context, answeruc.Request) (domanswer.Result, error) {
				return domanswer.Result{RequestID: "ans-9", Attempts: 3, Error: tt.err}, tt.err
			}

			rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{"query": "q"})
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body)
			}
			resp := decodeChat(t, rr)
			if resp.Success || resp.Answer != "" || len(resp.Citations) != 0 {
				t.Errorf("failed answer leaked content: %+v", resp)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if resp.Metadata.RequestID != "ans-9" {
				t.Errorf("metadata = %+v", resp.Metadata)
			}
		})
	}
}

func TestChat_UncitedAnswerIsPolite(t *testing.T) {
	f := newFixture(Options{})
	f.answers.answer = func(context.Context, answeruc.Request) (domanswer.Result, error) {
		return domanswer.Result{}, &domain.ResponseValidationError{
			Reason: "hallucinated_key", Detail: "doc9", LastAnswer: "secret draft",
		}
	}

	rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{"query": "q"})
	resp := decodeChat(t, rr)
	if resp.Error == nil || resp.Error.Message != UncitedAnswerMessage {
		t.Fatalf("error = %+v", resp.Error)
	}
	if strings.Contains(rr.Body.String(), "secret draft") {
		t.Error("last answer must not reach the client")
	}
}

func TestSearch_Success(t *testing.T) {
	f := newFixture(Options{SearchMode: mode.Keyword})
	f.search.search = func(ctx context.Context, _ *request.Request) ([]passage.Passage, error) {
		domain.UsageFromContext(ctx).AddEmbeddingTokens(0)
		return []passage.Passage{psg("p", "a", 3, 0.9), psg("p", "b", 1, 0.4)}, nil
	}

	rr := f.do(t, http.MethodPost, "/v1/search", map[string]any{
		"query": "termination", "top_k": 5, "min_score": 0.1,
		"filters": map[string]any{"project_id": []string{"p"}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("X-Embedding-Tokens") != "0" {
		t.Errorf("X-Embedding-Tokens = %q (cache hit still reports 0)", rr.Header().Get("X-Embedding-Tokens"))
	}

	var resp passageListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.Items[0].RecordID != "p-a-3" || resp.Items[0].DocumentTitle != "Contract_a.pdf" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Items[0].SectionHierarchy) != 2 {
		t.Errorf("section_hierarchy = %v", resp.Items[0].SectionHierarchy)
	}

	got := f.search.lastReq
	if got.Mode() != mode.Keyword || got.TopK() != 5 || got.MinScore() != 0.1 {
		t.Errorf("request mode=%s topK=%d min=%f", got.Mode(), got.TopK(), got.MinScore())
	}
	if len(got.Scope().ProjectIDs()) != 1 {
		t.Errorf("scope = %+v", got.Scope())
	}
}

func TestSearch_BodyModeOverridesDefault(t *testing.T) {
	f := newFixture(Options{SearchMode: mode.Keyword})
	rr := f.do(t, http.MethodPost, "/v1/search", map[string]any{"query": "q", "mode": "semantic"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if f.search.lastReq.Mode() != mode.Semantic {
		t.Errorf("mode = %s", f.search.lastReq.Mode())
	}
}

func TestSearch_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"top_k too large", map[string]any{"query": "q", "top_k": 51}},
		{"unknown mode", map[string]any{"query": "q", "mode": "geo"}},
		{"negative min score", map[string]any{"query": "q", "min_score": -1}},
		{"blank query", map[string]any{"query": "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{})
			rr := f.do(t, http.MethodPost, "/v1/search", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
			}
			if f.search.callCount != 0 {
				t.Error("search must not be called")
			}
		})
	}
}

func TestSearch_BackendError(t *testing.T) {
	f := newFixture(Options{})
	f.search.search = func(context.Context, *request.Request) ([]passage.Passage, error) {
		return nil, domain.NewSearchError("query backend", errors.New("dial tcp: refused"))
	}

	rr := f.do(t, http.MethodPost, "/v1/search", map[string]any{"query": "q"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeSearchFailed || strings.Contains(body.Message, "dial tcp") {
		t.Errorf("body = %+v", body)
	}
}

func TestListPassages(t *testing.T) {
	f := newFixture(Options{})
	f.search.document = func(_ context.Context, doc scope.DocumentRef, _ int) ([]passage.Passage, error) {
		return []passage.Passage{psg(doc.ProjectID, doc.ReferenceDocID, 0, 0), psg(doc.ProjectID, doc.ReferenceDocID, 1, 0)}, nil
	}

	rr := f.do(t, http.MethodGet, "/v1/projects/p1/documents/d9/passages?size=25", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if f.search.lastDoc != (scope.DocumentRef{ProjectID: "p1", ReferenceDocID: "d9"}) || f.search.lastSize != 25 {
		t.Errorf("doc = %+v size = %d", f.search.lastDoc, f.search.lastSize)
	}

	var resp passageListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.Items[1].ChunkIndex != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListPassages_DefaultAndInvalidSize(t *testing.T) {
	f := newFixture(Options{})

	rr := f.do(t, http.MethodGet, "/v1/projects/p1/documents/d9/passages", nil)
	if rr.Code != http.StatusOK || f.search.lastSize != 0 {
		t.Errorf("no size: status = %d size = %d", rr.Code, f.search.lastSize)
	}

	for _, q := range []string{"size=abc", "size=-1"} {
		rr := f.do(t, http.MethodGet, "/v1/projects/p1/documents/d9/passages?"+q, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rr.Code)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(Options{APIKeys: []string{"secret"}})
			f.health.report = healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{healthuc.ComponentSearch: healthuc.CheckOK},
			}

			rr := f.do(t, http.MethodGet, "/health", nil)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			var resp healthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != string(tt.status) || resp.Checks["search"] != "ok" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestRoutes_AuthAndFallbacks(t *testing.T) {
	f := newFixture(Options{APIKeys: []string{"secret"}})

	if rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{"query": "q"}); rr.Code != http.StatusUnauthorized {
		t.Errorf("chat without token: status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
		t.Errorf("metrics: status = %d", rr.Code)
	}

	open := newFixture(Options{})
	if rr := open.do(t, http.MethodGet, "/v1/unknown", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: status = %d", rr.Code)
	}
	if rr := open.do(t, http.MethodGet, "/v1/chat", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/chat: status = %d", rr.Code)
	}
}

func TestRoutes_PanicRecovered(t *testing.T) {
	f := newFixture(Options{})
	f.answers.answer = func(context.Context, answeruc.Request) (domanswer.Result, error) {
		panic("nil map")
	}

	rr := f.do(t, http.MethodPost, "/v1/chat", map[string]any{"query": "q"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeInternalError {
		t.Errorf("code = %s", body.Code)
	}
}

func TestClassify_MessagesHideInternals(t *testing.T) {
	p := classify(domain.NewGenerationError("gpt-4o", errors.New("api key sk-123 rejected")))
	if strings.Contains(p.message, "sk-123") {
		t.Errorf("message leaks cause: %q", p.message)
	}
	p = classify(fmt.Errorf("%w: documents[0].project_id is required", domain.ErrInvalidScope))
	if !strings.Contains(p.message, "project_id") {
		t.Errorf("validation message lost detail: %q", p.message)
	}
}

func TestClassify_CanceledIsNotInternal(t *testing.T) {
	p := classify(domain.NewSearchError("query backend", fmt.Errorf("ft.search: %w", context.Canceled)))
	if p.status != StatusClientClosedRequest || p.code != CodeCanceled {
		t.Fatalf("problem = %+v, want %d %s", p, StatusClientClosedRequest, CodeCanceled)
	}
	if p.status >= http.StatusInternalServerError {
		t.Errorf("canceled request would be logged as a server failure")
	}
}
