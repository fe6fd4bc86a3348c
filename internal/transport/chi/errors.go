package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/contramate/internal/domain"
)

// ErrorCode is the machine-readable error tag of an API response.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeUncitedAnswer     ErrorCode = "response_validation_failed"
	CodeSearchFailed      ErrorCode = "search_failed"
	CodeGenerationFailed  ErrorCode = "generation_failed"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeTimeout           ErrorCode = "timeout"
	CodeCanceled          ErrorCode = "canceled"
	CodeInternalError     ErrorCode = "internal_error"
)

// StatusClientClosedRequest reports a request abandoned by its caller.
const StatusClientClosedRequest = 499

// UncitedAnswerMessage is shown when no answer passed citation validation.
const UncitedAnswerMessage = "Sorry, I could not produce an answer with verifiable citations to the selected " +
	"contracts. Please rephrase the question or narrow the selected documents."

// problem is the client-facing rendering of an error.
type problem struct {
	status  int
	code    ErrorCode
	message string
}

// errorMapping matches one sentinel. Order matters: the first match wins, so more
// specific causes come before the wrappers that carry them.
type errorMapping struct {
	sentinel error
	status   int
	code     ErrorCode
	// message overrides the sentinel text; detail exposes err.Error() instead.
	message string
	detail  bool
}

var errorMappings = []errorMapping{
	{sentinel: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: CodeTimeout,
		message: "request timed out"},
	{sentinel: context.Canceled, status: StatusClientClosedRequest, code: CodeCanceled,
		message: "request canceled"},
	{sentinel: domain.ErrInvalidScope, status: http.StatusBadRequest, code: CodeValidationFailed, detail: true},
	{sentinel: domain.ErrInvalidRequest, status: http.StatusBadRequest, code: CodeValidationFailed, detail: true},
	{sentinel: domain.ErrResponseValidation, status: http.StatusUnprocessableEntity, code: CodeUncitedAnswer,
		message: UncitedAnswerMessage},
	{sentinel: domain.ErrRateLimited, status: http.StatusTooManyRequests, code: CodeRateLimited},
	{sentinel: domain.ErrEmbeddingProviderError, status: http.StatusBadGateway, code: CodeEmbeddingProvider},
	{sentinel: domain.ErrSearch, status: http.StatusBadGateway, code: CodeSearchFailed},
	{sentinel: domain.ErrGeneration, status: http.StatusBadGateway, code: CodeGenerationFailed},
}

// classify maps err to a client-facing problem without exposing internals.
func classify(err error) problem {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		msg := m.message
		switch {
		case m.detail:
			msg = err.Error()
		case msg == "":
			msg = m.sentinel.Error()
		}
		return problem{status: m.status, code: m.code, message: msg}
	}
	return problem{status: http.StatusInternalServerError, code: CodeInternalError, message: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
