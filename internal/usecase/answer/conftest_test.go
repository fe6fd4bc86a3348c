package answer

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/contramate/internal/domain"
	domanswer "github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
	"github.com/kailas-cloud/contramate/internal/metrics"
	"github.com/kailas-cloud/contramate/internal/usecase/prompt"
	"github.com/kailas-cloud/contramate/internal/usecase/search"
)

const (
	goodOutput = `{"answer":"Either party may terminate with 30 days notice [doc1].","citations":{"doc1":"Contract_A.pdf-3"}}`
	badOutput  = `{"answer":"Either party may terminate with 30 days notice [doc1].","citations":{"doc1":"source"}}`
)

// fakeRepo is the search backend behind a real search.Service.
type fakeRepo struct {
	mu      sync.Mutex
	hits    func(f filter.Compiled) []passage.Passage
	err     error
	filters []filter.Compiled
}

func (r *fakeRepo) SearchHybrid(
	_ context.Context, _ string, _ []float32, f filter.Compiled, _ int,
) ([]passage.Passage, error) {
	r.mu.Lock()
	r.filters = append(r.filters, f)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.hits == nil {
		return nil, nil
	}
	return r.hits(f), nil
}

func (r *fakeRepo) ListPassages(context.Context, filter.Compiled, int, int) ([]passage.Passage, error) {
	return nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 3}, nil
}

// scriptedGenerator returns outputs in order, repeating the last one.
type scriptedGenerator struct {
	outputs  []string
	err      error
	requests []domanswer.GenerationRequest
}

func (g *scriptedGenerator) Generate(
	_ context.Context, req domanswer.GenerationRequest,
) (domanswer.GenerationOutput, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return domanswer.GenerationOutput{}, g.err
	}
	i := min(len(g.requests)-1, len(g.outputs)-1)
	return domanswer.GenerationOutput{Raw: g.outputs[i], PromptTokens: 100, CompletionTokens: 10}, nil
}

func (g *scriptedGenerator) calls() int { return len(g.requests) }

func psg(doc string, chunk int, score float64) passage.Passage {
	return passage.New(
		passage.ID{ProjectID: "p", ReferenceDocID: doc, ChunkIndex: chunk},
		passage.Fields{
			DocumentTitle: "Contract_" + map[string]string{"a": "A", "b": "B", "x": "X"}[doc] + ".pdf",
			Content:       "Either party may terminate with 30 days notice.",
		},
		score,
	)
}

func defaultHits(filter.Compiled) []passage.Passage {
	return []passage.Passage{psg("a", 3, 0.9), psg("b", 1, 0.6)}
}

type fixture struct {
	repo *fakeRepo
	gen  *scriptedGenerator
	m    *metrics.Answer
	svc  *Service
}

func newFixture(t *testing.T, cfg Config, outputs ...string) *fixture {
	t.Helper()
	repo := &fakeRepo{hits: defaultHits}
	gen := &scriptedGenerator{outputs: outputs}
	m := metrics.NewAnswer()
	svc := New(
		search.New(repo, fakeEmbedder{}),
		gen,
		prompt.New(nil, 0),
		citation.NewValidator(citation.DefaultMinDescriptorLen),
		cfg,
		m,
	)
	svc.newID = func() string { return "req-1" }
	return &fixture{repo: repo, gen: gen, m: m, svc: svc}
}
