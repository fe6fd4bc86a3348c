package answer

import (
	"context"

	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
)

// Generator is the generation backend contract: one call per attempt.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationOutput, error)
}

// GenerationRequest is the assembled prompt of one attempt.
type GenerationRequest struct {
	Messages []chat.Message
}

// GenerationOutput is what the backend returned. Backends with structured output
// fill Structured; the rest return Raw text for parsing.
type GenerationOutput struct {
	Structured       *citation.Candidate
	Raw              string
	PromptTokens     int
	CompletionTokens int
}

// Candidate normalizes the output into one candidate shape.
func (o GenerationOutput) Candidate() citation.Candidate {
	return citation.Normalize(o.Structured, o.Raw)
}
