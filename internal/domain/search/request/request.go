package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 50
	// CandidateFactor multiplies top-K into the number of candidates requested from the backend.
	CandidateFactor = 2
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	scope      scope.Filter
	topK       int
	minScore   float64
	vector     []float32
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, topK=10. TopK is clamped to MaxTopK.
func New(query string, m mode.Mode, s scope.Filter, topK int, minScore float64) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid search mode: %q", domain.ErrInvalidRequest, m)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if minScore < 0 {
		return Request{}, fmt.Errorf("%w: min_score must not be negative", domain.ErrInvalidRequest)
	}

	return Request{
		query:      query,
		searchMode: m,
		scope:      s,
		topK:       topK,
		minScore:   minScore,
	}, nil
}

// WithVector returns a copy carrying a precomputed query embedding.
func (r Request) WithVector(v []float32) Request {
	r.vector = v
	return r
}

// WithScope returns a copy restricted to another scope.
func (r Request) WithScope(s scope.Filter) Request {
	r.scope = s
	return r
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Scope returns the caller scope.
func (r *Request) Scope() scope.Filter { return r.scope }

// TopK returns the maximum number of passages to return.
func (r *Request) TopK() int { return r.topK }

// Candidates returns how many hits to request from the backend before dedup and trimming.
func (r *Request) Candidates() int { return r.topK * CandidateFactor }

// MinScore returns the minimum relevance threshold.
func (r *Request) MinScore() float64 { return r.minScore }

// Vector returns the precomputed query embedding, nil when absent.
func (r *Request) Vector() []float32 { return r.vector }
