// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Classification of vendor errors into ErrorKind

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a single call that yields an Answer or a ToolRequest.
type Provider interface {
	// Name returns the provider name (for logging/tracing).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Call sends one request. prompt becomes the system instruction,
	// history is the conversation so far, tools may be nil. The call's
	// timeout is carried by ctx. Errors are *ProviderError.
	Call(ctx context.Context, prompt string, history []ChatMessage, tools []ToolDefinition) (Response, error)
}
