package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	gochi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	"github.com/kailas-cloud/contramate/internal/logger"
	"github.com/kailas-cloud/contramate/internal/metrics"
	answeruc "github.com/kailas-cloud/contramate/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/contramate/internal/usecase/health"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	// APIKeys enables bearer auth when non-empty.
	APIKeys []string
	// RequestTimeout bounds chat and search handling. 0 disables it.
	RequestTimeout time.Duration
	// SearchMode is used by /v1/search when the body names none.
	SearchMode mode.Mode
}

// Server serves the chat, search and passage endpoints.
type Server struct {
	answers  Answerer
	search   Searcher
	health   HealthChecker
	logger   *zap.Logger
	opts     Options
	validate *validator.Validate
}

// NewServer creates an HTTP API server.
func NewServer(answers Answerer, search Searcher, health HealthChecker, logger *zap.Logger, opts Options) *Server {
	return &Server{
		answers:  answers,
		search:   search,
		health:   health,
		logger:   logger,
		opts:     opts,
		validate: newValidator(),
	}
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r gochi.Router) {
		r.Post("/chat", s.Chat)
		r.Post("/search", s.Search)
		r.Get("/projects/{project_id}/documents/{reference_doc_id}/passages", s.ListPassages)
	})
	return r
}

// Chat handles POST /v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := s.decode(w, r, &body); err != nil {
		writeChatError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error(), chatMetadata{})
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		writeChatError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err), chatMetadata{})
		return
	}

	sc, err := body.Filters.toScope()
	if err != nil {
		p := classify(err)
		writeChatError(w, p.status, p.code, p.message, chatMetadata{})
		return
	}
	history, err := historyFromDTO(body.MessageHistory)
	if err != nil {
		p := classify(err)
		writeChatError(w, p.status, p.code, p.message, chatMetadata{})
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	ctx, usage := domain.NewContextWithUsage(ctx)

	res, err := s.answers.Answer(ctx, answeruc.Request{Query: body.Query, Scope: sc, History: history})
	setUsageHeaders(w, usage)

	meta := chatMetadata{
		RequestID:        res.RequestID,
		Attempts:         res.Attempts,
		Passages:         len(res.Passages),
		EmbeddingTokens:  usage.EmbeddingTokens,
		GenerationTokens: usage.GenerationTokens,
		FiltersApplied:   !sc.IsEmpty(),
	}
	if err != nil {
		p := s.logFailure(r.Context(), err)
		writeChatError(w, p.status, p.code, p.message, meta)
		return
	}

	citations := res.Citations
	if citations == nil {
		citations = citation.Map{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Success:   true,
		Answer:    res.Answer,
		Citations: citations,
		Metadata:  meta,
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := s.decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return
	}

	sc, err := body.Filters.toScope()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	m := mode.Mode(body.Mode)
	if m == "" {
		m = s.opts.SearchMode
	}
	req, err := request.New(body.Query, m, sc, body.TopK, body.MinScore)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	ctx, usage := domain.NewContextWithUsage(ctx)

	passages, err := s.search.Search(ctx, &req)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, passagesToDTO(passages))
}

// ListPassages handles GET /v1/projects/{project_id}/documents/{reference_doc_id}/passages.
func (s *Server) ListPassages(w http.ResponseWriter, r *http.Request) {
	var size int
	if err := runtime.BindQueryParameter("form", true, false, "size", r.URL.Query(), &size); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "invalid size parameter")
		return
	}
	if size < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "size must not be negative")
		return
	}

	doc := scope.DocumentRef{
		ProjectID:      gochi.URLParam(r, "project_id"),
		ReferenceDocID: gochi.URLParam(r, "reference_doc_id"),
	}
	passages, err := s.search.SearchDocument(r.Context(), doc, size)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, passagesToDTO(passages))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err //nolint:wrapcheck // rendered to the client as-is
	}
	return nil
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	p := s.logFailure(r.Context(), err)
	writeError(w, p.status, p.code, p.message)
}

// logFailure classifies err and logs it on the request logger.
func (s *Server) logFailure(ctx context.Context, err error) problem {
	p := classify(err)
	log := logger.FromContext(ctx)

	fields := []zap.Field{zap.Error(err), zap.Int("status", p.status), zap.String("code", string(p.code))}
	var rve *domain.ResponseValidationError
	if errors.As(err, &rve) {
		fields = append(fields,
			zap.String("reason", rve.Reason),
			zap.Int("attempts", rve.Attempts),
			zap.String("last_answer", rve.LastAnswer),
		)
	}

	switch {
	case p.status >= http.StatusInternalServerError:
		log.Error("request failed", fields...)
	default:
		log.Warn("request rejected", fields...)
	}
	return p
}

func writeChatError(w http.ResponseWriter, status int, code ErrorCode, message string, meta chatMetadata) {
	writeJSON(w, status, chatResponse{
		Success:   false,
		Citations: citation.Map{},
		Error:     &errorBody{Code: code, Message: message},
		Metadata:  meta,
	})
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage == nil {
		return
	}
	if usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	}
	if usage.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(usage.GenerationTokens))
	}
}
