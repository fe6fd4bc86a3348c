package chi

import (
	"context"

	domanswer "github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	answeruc "github.com/kailas-cloud/contramate/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/contramate/internal/usecase/health"
)

// Answerer runs one cited answer cycle.
type Answerer interface {
	Answer(ctx context.Context, req answeruc.Request) (domanswer.Result, error)
}

// Searcher retrieves passages for the search endpoints.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) ([]passage.Passage, error)
	SearchDocument(ctx context.Context, doc scope.DocumentRef, size int) ([]passage.Passage, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
