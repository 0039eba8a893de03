// Package llmtest provides scripted providers for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/richinex/querygate/llm"
)

// Step is one scripted reply: either Response or Err.
type Step struct {
	Response llm.Response
	Err      error
	// Delay blocks the call (honoring ctx) before replying.
	Delay time.Duration
}

// Call captures the arguments of one invocation.
type Call struct {
	Prompt  string
	History []llm.ChatMessage
	Tools   []llm.ToolDefinition
}

// Provider replays Steps in order and repeats the last one when the
// script runs out.
type Provider struct {
	name  string
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// New creates a scripted provider.
func New(name string, steps ...Step) *Provider {
	return &Provider{name: name, steps: steps}
}

// Answering always answers text.
func Answering(name, text string) *Provider {
	return New(name, Step{Response: llm.Answer{Text: text}})
}

// Failing always fails with the given kind.
func Failing(name string, kind llm.ErrorKind) *Provider {
	return New(name, Step{Err: &llm.ProviderError{Provider: name, Kind: kind, Err: fmt.Errorf("injected %s", kind)}})
}

// Hanging blocks until ctx is done.
func Hanging(name string) *Provider {
	return New(name, Step{Delay: time.Hour, Response: llm.Answer{Text: "too late"}})
}

// LoopingSearch requests web_search on every call that offers tools and
// answers closingText when tools are withdrawn.
func LoopingSearch(name, closingText string) *Provider {
	return &Provider{name: name, steps: []Step{{Response: loopMarker{closing: closingText}}}}
}

// AlwaysSearch requests web_search on every call, even without tools.
func AlwaysSearch(name string) *Provider {
	return New(name, Step{Response: SearchRequest("call", "looping query")})
}

// loopMarker makes LoopingSearch depend on whether tools were offered.
type loopMarker struct {
	llm.Answer
	closing string
}

// SearchRequest builds a web_search tool request.
func SearchRequest(id, query string) llm.ToolRequest {
	args, _ := json.Marshal(map[string]string{"query": query})
	return llm.ToolRequest{ID: id, Name: "web_search", Args: args}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Model returns a fixed model name.
func (p *Provider) Model() string { return "scripted" }

// Call replays the next step.
func (p *Provider) Call(ctx context.Context, prompt string, history []llm.ChatMessage, tools []llm.ToolDefinition) (llm.Response, error) {
	p.mu.Lock()
	idx := len(p.calls)
	p.calls = append(p.calls, Call{
		Prompt:  prompt,
		History: append([]llm.ChatMessage(nil), history...),
		Tools:   tools,
	})
	step := p.steps[len(p.steps)-1]
	if idx < len(p.steps) {
		step = p.steps[idx]
	}
	p.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, &llm.ProviderError{Provider: p.name, Kind: llm.KindTimeout, Err: ctx.Err()}
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}

	if m, ok := step.Response.(loopMarker); ok {
		if len(tools) == 0 {
			return llm.Answer{Text: m.closing}, nil
		}
		return SearchRequest(fmt.Sprintf("call_%d", idx), fmt.Sprintf("query %d", idx)), nil
	}
	return step.Response, nil
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount returns the number of invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var _ llm.Provider = (*Provider)(nil)
