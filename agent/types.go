// Package agent coordinates the bounded tool-use loop for one query.
//
// Contains the loop states and the input and output of a run.
package agent

import (
	"context"

	"github.com/richinex/querygate/failover"
	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

// Invoker calls the provider chain. *failover.Controller implements it.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, history []llm.ChatMessage, tools []llm.ToolDefinition) (failover.Result, error)
}

// State is a position in the tool-use loop.
type State int

const (
	StateRequesting State = iota
	StateToolPending
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateToolPending:
		return "tool_pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input is one run of the loop.
type Input struct {
	Question string
	// Context is the serialized document context.
	Context        string
	History        []llm.ChatMessage
	AllowWebSearch bool
}

// Output is the result of a completed run.
type Output struct {
	FinalAnswer   string
	ToolCallCount int
	WebSearchUsed bool
	ProviderUsed  string
	Calls         []model.ToolCall
	Results       []model.ToolResult
	// Trace holds every provider attempt across all invocations, in order.
	Trace model.Trace
	// Forced reports that the forced final call was reached.
	Forced     bool
	LLMCalls   int
	TokenUsage llm.TokenUsage
}

func (o *Output) addUsage(u *llm.TokenUsage) {
	if u == nil {
		return
	}
	o.TokenUsage.PromptTokens += u.PromptTokens
	o.TokenUsage.CompletionTokens += u.CompletionTokens
	o.TokenUsage.TotalTokens += u.TotalTokens
}
