package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contramate/internal/domain"
	domanswer "github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	"github.com/kailas-cloud/contramate/internal/logger"
	"github.com/kailas-cloud/contramate/internal/metrics"
	"github.com/kailas-cloud/contramate/internal/usecase/prompt"
)

// maxBackoff caps the pause between citation retries.
const maxBackoff = 10 * time.Second

// Config tunes the answer cycle.
type Config struct {
	MaxAttempts int
	TopK        int
	MinScore    float64
	SearchMode  mode.Mode
	// PerDocument is the passage quota per document of a comparison; 0 splits TopK.
	PerDocument int
	// RetryBackoff is the pause before the second attempt, doubled for each later one. 0 disables it.
	RetryBackoff time.Duration
}

// Request is one question with its scope and prior turns.
type Request struct {
	Query   string
	Scope   scope.Filter
	History chat.History
}

// Service orchestrates search, generation and citation validation with bounded retries.
type Service struct {
	search    Searcher
	gen       domanswer.Generator
	prompts   Assembler
	validator Validator
	cfg       Config
	metrics   *metrics.Answer
	newID     func() string
}

// New creates the orchestrator. m may be nil.
func New(
	search Searcher,
	gen domanswer.Generator,
	prompts Assembler,
	validator Validator,
	cfg Config,
	m *metrics.Answer,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domanswer.DefaultMaxAttempts
	}
	return &Service{
		search:    search,
		gen:       gen,
		prompts:   prompts,
		validator: validator,
		cfg:       cfg,
		metrics:   m,
		newID:     uuid.NewString,
	}
}

// Answer runs one answer cycle. Searching happens once; generation and validation
// repeat until a candidate is accepted or MaxAttempts is reached.
//
// Errors: domain.ErrInvalidRequest for bad input, *domain.SearchError,
// *domain.GenerationError, *domain.ResponseValidationError, or the context error.
// The returned Result is populated in every case.
func (s *Service) Answer(ctx context.Context, req Request) (domanswer.Result, error) {
	res := domanswer.Result{RequestID: s.newID()}
	log := logger.FromContext(ctx).With(zap.String("answer_id", res.RequestID))

	sreq, err := request.New(req.Query, s.cfg.SearchMode, req.Scope, s.cfg.TopK, s.cfg.MinScore)
	if err != nil {
		return s.fail(res, "invalid_request", err)
	}

	s.transition(log, domanswer.Searching())
	passages, err := s.retrieve(ctx, &sreq)
	if err != nil {
		log.Warn("Search failed", zap.Error(err))
		return s.fail(res, "search_error", domain.NewSearchError("retrieve passages", err))
	}

	if len(passages) == 0 {
		s.transition(log, domanswer.Accepted(0))
		res.Success = true
		res.Answer = domanswer.NoPassagesAnswer
		res.Citations = citation.Map{}
		s.finish("no_passages", 0)
		return res, nil
	}

	binding := s.prompts.Bind(passages)
	res.Passages = binding.Passages()

	var (
		last       domanswer.Attempt
		lastAnswer string
	)
	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			res.Attempts = n - 1
			return s.fail(res, "canceled", fmt.Errorf("answer cycle interrupted: %w", err))
		}

		s.transition(log, domanswer.Generating(n))
		msgs := s.prompts.Assemble(prompt.Input{
			Question:   sreq.Query(),
			Binding:    binding,
			History:    req.History,
			Attempt:    n,
			Correction: last.Outcome,
		})

		out, err := s.gen.Generate(ctx, domanswer.GenerationRequest{Messages: msgs})
		res.Attempts = n
		if err != nil {
			log.Warn("Generation failed", zap.Int("attempt", n), zap.Error(err))
			return s.fail(res, "generation_error", domain.NewGenerationError("", err))
		}
		domain.UsageFromContext(ctx).AddGenerationTokens(out.PromptTokens + out.CompletionTokens)

		s.transition(log, domanswer.Validating(n))
		cand := out.Candidate()
		lastAnswer = cand.Answer
		last = domanswer.Attempt{
			Number:   n,
			Messages: msgs,
			Raw:      cand.Raw,
			Outcome:  s.validator.Validate(cand, binding),
		}

		if last.Outcome.Accepted() {
			s.transition(log, domanswer.Accepted(n))
			res.Success = true
			res.Answer = cand.Answer
			res.Citations = cand.Citations
			s.finish("accepted", n)
			return res, nil
		}

		s.reject(log, last)
		if n == s.cfg.MaxAttempts {
			break
		}

		s.transition(log, domanswer.Retrying(n, last.Outcome.Reason()))
		if err := s.backoff(ctx, n); err != nil {
			return s.fail(res, "canceled", fmt.Errorf("answer cycle interrupted: %w", err))
		}
	}

	s.transition(log, domanswer.Failed(res.Attempts, last.Outcome.Reason()))
	return s.fail(res, "validation_failed", &domain.ResponseValidationError{
		Reason:     string(last.Outcome.Reason()),
		Detail:     last.Outcome.Detail(),
		Attempts:   res.Attempts,
		LastAnswer: lastAnswer,
	})
}

// retrieve compares documents separately when the scope names several of them.
func (s *Service) retrieve(ctx context.Context, req *request.Request) ([]passage.Passage, error) {
	if len(req.Scope().Documents()) >= 2 {
		return s.search.CompareDocuments(ctx, req, s.cfg.PerDocument) //nolint:wrapcheck // SearchError
	}
	return s.search.Search(ctx, req) //nolint:wrapcheck // SearchError
}

func (s *Service) backoff(ctx context.Context, attempt int) error {
	if s.cfg.RetryBackoff <= 0 {
		return nil
	}
	d := min(s.cfg.RetryBackoff<<(attempt-1), maxBackoff)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // wrapped by caller
	case <-t.C:
		return nil
	}
}

func (s *Service) fail(res domanswer.Result, outcome string, err error) (domanswer.Result, error) {
	res.Success = false
	res.Error = err
	s.finish(outcome, res.Attempts)
	return res, err
}

func (s *Service) transition(log *zap.Logger, st domanswer.State) {
	fields := []zap.Field{zap.String("state", string(st.Phase))}
	if st.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", st.Attempt))
	}
	if st.Reason != "" {
		fields = append(fields, zap.String("reason", string(st.Reason)))
	}
	if st.Terminal() {
		log.Info("Answer cycle "+string(st.Phase), fields...)
		return
	}
	log.Debug("Answer cycle transition", fields...)
}

func (s *Service) reject(log *zap.Logger, a domanswer.Attempt) {
	log.Info("Candidate rejected",
		zap.Int("attempt", a.Number),
		zap.String("reason", string(a.Outcome.Reason())),
		zap.String("detail", a.Outcome.Detail()),
	)
	if s.metrics != nil {
		s.metrics.Rejections.WithLabelValues(string(a.Outcome.Reason())).Inc()
	}
}

func (s *Service) finish(outcome string, attempts int) {
	if s.metrics == nil {
		return
	}
	s.metrics.Outcomes.WithLabelValues(outcome).Inc()
	s.metrics.Attempts.Observe(float64(attempts))
}
