package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	"github.com/kailas-cloud/contramate/internal/logger"
	"github.com/kailas-cloud/contramate/internal/metrics"
)

// Listing limits for document and project browsing.
const (
	DefaultListSize = 100
	MaxListSize     = 1000
)

// Service is the hybrid search client: scope compilation, query embedding,
// one backend call, and deterministic ranking of the returned passages.
type Service struct {
	repo  Repository
	embed Embedder
}

// New creates a search service.
func New(repo Repository, embed Embedder) *Service {
	return &Service{repo: repo, embed: embed}
}

// Search runs one hybrid query for the request. Every failure is a domain.SearchError;
// an empty result always means the backend found nothing.
func (s *Service) Search(ctx context.Context, req *request.Request) ([]passage.Passage, error) {
	start := time.Now()
	passages, err := s.search(ctx, req)
	observe("search", start, passages, err)
	return passages, err
}

func (s *Service) search(ctx context.Context, req *request.Request) ([]passage.Passage, error) {
	vector, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	hits, err := s.query(ctx, req, vector, req.Candidates())
	if err != nil {
		return nil, err
	}

	ranked := rank(hits, req.Scope(), req.MinScore(), req.TopK())
	logger.FromContext(ctx).Debug("Search completed",
		zap.String("mode", string(req.Mode())),
		zap.Int("hits", len(hits)),
		zap.Int("passages", len(ranked)),
	)
	return ranked, nil
}

// CompareDocuments searches each exact document of the scope separately and merges
// the results, so every named document gets a chance to contribute. The query is
// embedded once. Scopes with fewer than two documents fall back to Search.
// The per-document quota is capped at an even split of top-K (at least one per
// document) and perDocument <= 0 selects that split. The merged result never
// exceeds top-K; with more documents than top-K the lowest-scoring ones drop out.
func (s *Service) CompareDocuments(
	ctx context.Context, req *request.Request, perDocument int,
) ([]passage.Passage, error) {
	docs := req.Scope().Documents()
	if len(docs) < 2 {
		return s.Search(ctx, req)
	}
	if fair := max(1, req.TopK()/len(docs)); perDocument <= 0 || perDocument > fair {
		perDocument = fair
	}

	start := time.Now()
	passages, err := s.compare(ctx, req, docs, perDocument)
	observe("compare", start, passages, err)
	return passages, err
}

func (s *Service) compare(
	ctx context.Context, req *request.Request, docs []scope.DocumentRef, perDocument int,
) ([]passage.Passage, error) {
	vector, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	perDoc := make([][]passage.Passage, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range docs {
		sub := req.WithScope(req.Scope().WithDocuments(d))
		g.Go(func() error {
			hits, err := s.query(gctx, &sub, vector, perDocument*request.CandidateFactor)
			if err != nil {
				return err
			}
			perDoc[i] = rank(hits, sub.Scope(), req.MinScore(), perDocument)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already a SearchError
	}

	var merged []passage.Passage
	for _, ps := range perDoc {
		merged = append(merged, ps...)
	}
	return rank(merged, req.Scope(), req.MinScore(), req.TopK()), nil
}

// SearchDocument lists every chunk of one document ordered by chunk index.
func (s *Service) SearchDocument(ctx context.Context, doc scope.DocumentRef, size int) ([]passage.Passage, error) {
	sc, err := scope.New([]scope.DocumentRef{doc}, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("document scope: %w", err)
	}
	return s.list(ctx, "document", sc, size)
}

// SearchProject searches passages of one project. An empty query lists the
// project's chunks instead of ranking them.
func (s *Service) SearchProject(
	ctx context.Context, projectID, query string, m mode.Mode, size int,
) ([]passage.Passage, error) {
	sc, err := scope.New(nil, "", nil, []string{projectID})
	if err != nil {
		return nil, fmt.Errorf("project scope: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		return s.list(ctx, "project", sc, size)
	}

	req, err := request.New(query, m, sc, size, 0)
	if err != nil {
		return nil, fmt.Errorf("project search: %w", err)
	}
	return s.Search(ctx, &req)
}

func (s *Service) list(ctx context.Context, op string, sc scope.Filter, size int) ([]passage.Passage, error) {
	if size <= 0 {
		size = DefaultListSize
	}
	size = min(size, MaxListSize)

	start := time.Now()
	passages, err := s.repo.ListPassages(ctx, filter.Compile(sc), 0, size)
	if err != nil {
		err = domain.NewSearchError("list "+op+" passages", err)
		observe(op, start, nil, err)
		return nil, err
	}
	byChunk(passages)
	observe(op, start, passages, nil)
	return passages, nil
}

// queryVector returns the caller-supplied vector or embeds the query.
// Keyword mode never embeds.
func (s *Service) queryVector(ctx context.Context, req *request.Request) ([]float32, error) {
	if !req.Mode().NeedsVector() {
		return nil, nil
	}
	if v := req.Vector(); len(v) > 0 {
		return v, nil
	}

	embResult, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, domain.NewSearchError("vectorize query", err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(embResult.TotalTokens)
	return embResult.Embedding, nil
}

func (s *Service) query(
	ctx context.Context, req *request.Request, vector []float32, k int,
) ([]passage.Passage, error) {
	text := ""
	if req.Mode().NeedsText() {
		text = req.Query()
	}

	hits, err := s.repo.SearchHybrid(ctx, text, vector, filter.Compile(req.Scope()), k)
	if err != nil {
		return nil, domain.NewSearchError("query backend", err)
	}
	return hits, nil
}

func observe(op string, start time.Time, passages []passage.Passage, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SearchResults.WithLabelValues(op).Observe(float64(len(passages)))
	}
}
