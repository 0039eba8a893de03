// Package model provides domain types shared across packages.
//
// Every value here except Document is built fresh per request and handed
// from one stage to the next without in-place mutation.
package model

import (
	"fmt"
	"time"
)

// Document is a read-only snapshot owned by an external document store.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Summary    string    `json:"summary,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	OwnerScope string    `json:"owner_scope,omitempty"`
}

// RankedDocument is a document with its relevance score and 1-based rank.
type RankedDocument struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`
}

// AssembledContext is the budget-bounded prefix of a ranking, serialized
// for a model prompt. EstimatedTokens never exceeds the budget it was
// assembled for.
type AssembledContext struct {
	Selected        []RankedDocument `json:"selected"`
	SerializedText  string           `json:"serialized_text"`
	EstimatedTokens int              `json:"estimated_tokens"`
}

// Outcome classifies a single provider attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeTransportError
	OutcomeRateLimited
	OutcomeInvalidResponse
	// OutcomeCircuitOpen marks an attempt skipped by an open breaker.
	OutcomeCircuitOpen
)

// String returns the snake_case name used in logs, metrics and JSON.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeInvalidResponse:
		return "invalid_response"
	case OutcomeCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// MarshalText lets Outcome serialize by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	for c := OutcomeSuccess; c <= OutcomeCircuitOpen; c++ {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// ProviderAttempt records one call to one provider.
type ProviderAttempt struct {
	ProviderID string    `json:"provider_id"`
	StartedAt  time.Time `json:"started_at"`
	Outcome    Outcome   `json:"outcome"`
	LatencyMs  int64     `json:"latency_ms"`
	Err        string    `json:"error,omitempty"`
}

// Trace is the ordered list of attempts made for one request.
type Trace []ProviderAttempt

// Last returns the final attempt, or false for an empty trace.
func (t Trace) Last() (ProviderAttempt, bool) {
	if len(t) == 0 {
		return ProviderAttempt{}, false
	}
	return t[len(t)-1], true
}

// WebSearchToolName is the only tool the loop advertises.
const WebSearchToolName = "web_search"

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Query     string `json:"query"`
	Iteration int    `json:"iteration"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ToolResult is the outcome of a ToolCall. Error is set when the tool
// failed; the model sees it as content, not as a request failure.
type ToolResult struct {
	CallID  string         `json:"call_id"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// Failed reports whether the tool call produced an error.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// ConversationTurn is the record emitted for the persistence collaborator.
type ConversationTurn struct {
	ConversationID     string    `json:"conversation_id"`
	Query              string    `json:"query"`
	FinalAnswer        string    `json:"final_answer"`
	DocumentsUsedCount int       `json:"documents_used_count"`
	ProviderUsed       string    `json:"provider_used"`
	WebSearchUsed      bool      `json:"web_search_used"`
	ToolCallCount      int       `json:"tool_call_count"`
	CreatedAt          time.Time `json:"created_at"`
}
