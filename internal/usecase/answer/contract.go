package answer

import (
	"context"

	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/search/request"
	"github.com/kailas-cloud/contramate/internal/usecase/prompt"
)

// Searcher retrieves the passages an answer is grounded on.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) ([]passage.Passage, error)
	CompareDocuments(ctx context.Context, req *request.Request, perDocument int) ([]passage.Passage, error)
}

// Assembler binds passages to citation keys and builds attempt prompts.
type Assembler interface {
	Bind(passages []passage.Passage) citation.Binding
	Assemble(in prompt.Input) []chat.Message
}

// Validator checks a candidate answer against the binding.
type Validator interface {
	Validate(c citation.Candidate, b citation.Binding) citation.Outcome
}
