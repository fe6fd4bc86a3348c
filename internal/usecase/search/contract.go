package search

import (
	"context"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
)

// Repository defines the storage contract for passage retrieval.
type Repository interface {
	SearchHybrid(
		ctx context.Context, text string, vector []float32, f filter.Compiled, k int,
	) ([]passage.Passage, error)

	ListPassages(ctx context.Context, f filter.Compiled, offset, limit int) ([]passage.Passage, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
