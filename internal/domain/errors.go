package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSearch signals a failed retrieval (backend unreachable, rejected query, timeout).
	ErrSearch = errors.New("search failed")
	// ErrGeneration signals a failed generation call (model or network failure).
	ErrGeneration = errors.New("generation failed")
	// ErrResponseValidation signals that no answer passed citation validation within the attempt cap.
	ErrResponseValidation = errors.New("response validation failed")

	// ErrInvalidScope signals a malformed scope filter.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidRequest signals a malformed search or answer request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited signals a rate limit hit at a provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// SearchError is a fatal retrieval failure. It is reported immediately and never retried
// by the answer loop.
type SearchError struct {
	Op  string
	Err error
}

func (e *SearchError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", ErrSearch.Error(), e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSearch.Error(), e.Op, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSearch) hold for every SearchError.
func (e *SearchError) Is(target error) bool { return target == ErrSearch }

// NewSearchError wraps err as a SearchError unless it already is one.
func NewSearchError(op string, err error) error {
	var se *SearchError
	if errors.As(err, &se) {
		return err
	}
	return &SearchError{Op: op, Err: err}
}

// GenerationError is a model or network failure. Transient faults are retried by the
// generation client itself before this error is produced.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", ErrGeneration.Error(), e.Err)
	}
	return fmt.Sprintf("%s (model %s): %v", ErrGeneration.Error(), e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGeneration) hold for every GenerationError.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// NewGenerationError wraps err as a GenerationError unless it already is one.
func NewGenerationError(model string, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Model: model, Err: err}
}

// ResponseValidationError reports that the model could not produce a trustworthy,
// cited answer within the attempt cap.
type ResponseValidationError struct {
	Reason     string
	Detail     string
	Attempts   int
	LastAnswer string
}

func (e *ResponseValidationError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %s: %s",
		ErrResponseValidation.Error(), e.Attempts, e.Reason, e.Detail)
}

// Is makes errors.Is(err, ErrResponseValidation) hold for every ResponseValidationError.
func (e *ResponseValidationError) Is(target error) bool { return target == ErrResponseValidation }
