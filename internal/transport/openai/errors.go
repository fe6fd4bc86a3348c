package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/contramate/internal/domain"
)

// wrapAPIError extracts a human-readable error from the API response.
// Transport failures keep the cause so context errors stay matchable; HTTP 429
// additionally matches domain.ErrRateLimited.
func wrapAPIError(kind string, err error) error {
	wrapped := describeAPIError(kind, err)
	if statusCode(err) == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", wrapped, domain.ErrRateLimited)
	}
	return wrapped
}

func describeAPIError(kind string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%s API error %d: %s", kind, reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("%s API error %d: %s", kind, reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s", kind, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%s request failed: %w", kind, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// statusCode returns the HTTP status of an API failure, 0 for transport errors.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isTransient reports whether a failed call may succeed when repeated:
// rate limiting, server errors and network failures. Cancellation never is.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusCode(err)
	switch {
	case code == 0:
		return true
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
