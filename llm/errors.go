// Provider error classification.
//
// Information Hiding:
// - Vendor SDK error types stay inside this package
// - Callers only see ErrorKind

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies why a provider call failed.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindRateLimited
	KindInvalidResponse
	KindCanceled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidResponse:
		return "invalid_response"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderError is returned by every Provider.Call failure.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrInvalidResponse is wrapped by malformed or empty model output.
var ErrInvalidResponse = errors.New("invalid response")

func invalidResponse(provider, detail string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindInvalidResponse,
		Err:      fmt.Errorf("%w: %s", ErrInvalidResponse, detail),
	}
}

// classify wraps a vendor error as a *ProviderError.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	}

	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return KindRateLimited
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return KindTimeout
		}
		return KindTransport
	}

	if IsRateLimitError(err) {
		return KindRateLimited
	}
	return KindTransport
}

// statusCode extracts an HTTP status from the SDK error types we know.
func statusCode(err error) int {
	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return oaiAPI.HTTPStatusCode
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode
	}
	return 0
}

// IsRateLimitError reports a quota or rate limit failure from its message.
// Gemini surfaces these as plain errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

// KindOf returns the classification of err, or KindTransport for errors
// that did not come from a provider.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return kindOf(err)
}
