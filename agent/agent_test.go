package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/richinex/querygate/failover"
	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/llm/llmtest"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/tools"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, which starts a worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func chain(t *testing.T, providers ...llm.Provider) *failover.Controller {
	t.Helper()
	entries := make([]failover.Entry, len(providers))
	for i, p := range providers {
		entries[i] = failover.Entry{Provider: p, Timeout: time.Second}
	}
	c, err := failover.New(entries, nil)
	require.NoError(t, err)
	return c
}

func searchRegistry(t *testing.T, fn tools.SearcherFunc) *tools.Registry {
	t.Helper()
	r, err := tools.WithWebSearch(fn)
	require.NoError(t, err)
	return r
}

func goodSearch(ctx context.Context, query string) ([]model.SearchResult, error) {
	return []model.SearchResult{{Title: "Result for " + query, URL: "https://example.com/" + query, Snippet: "snippet"}}, nil
}

func newCoordinator(t *testing.T, registry *tools.Registry, providers ...llm.Provider) *Coordinator {
	return NewBuilder(chain(t, providers...)).
		Tools(registry).
		ToolConfig(tools.ToolConfig{TimeoutSecs: 1, MaxRetries: 1}).
		Build()
}

func TestRunPassThroughAnswer(t *testing.T) {
	p := llmtest.Answering("primary", "the answer")
	c := newCoordinator(t, searchRegistry(t, goodSearch), p)

	out, err := c.Run(context.Background(), Input{Question: "q", Context: "[Document 1] A", AllowWebSearch: true})
	require.NoError(t, err)

	assert.Equal(t, "the answer", out.FinalAnswer)
	assert.Equal(t, 0, out.ToolCallCount)
	assert.False(t, out.WebSearchUsed)
	assert.Equal(t, "primary", out.ProviderUsed)
	assert.Equal(t, 1, out.LLMCalls)
	require.Len(t, out.Trace, 1)

	call := p.Calls()[0]
	assert.Contains(t, call.Prompt, "[Document 1] A")
	require.Len(t, call.Tools, 1)
	assert.Equal(t, model.WebSearchToolName, call.Tools[0].Name)
	assert.Equal(t, llm.UserMessage("q"), call.History[len(call.History)-1])
}

func TestRunTerminatesAfterMaxIterations(t *testing.T) {
	p := llmtest.LoopingSearch("primary", "closing answer")
	var searches int
	registry := searchRegistry(t, func(ctx context.Context, query string) ([]model.SearchResult, error) {
		searches++
		return goodSearch(ctx, query)
	})
	c := newCoordinator(t, registry, p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, out.ToolCallCount)
	assert.Equal(t, DefaultMaxIterations, searches)
	assert.True(t, out.WebSearchUsed)
	assert.True(t, out.Forced)
	assert.Equal(t, "closing answer", out.FinalAnswer)
	assert.Equal(t, DefaultMaxIterations+1, p.CallCount())
	require.Len(t, out.Calls, DefaultMaxIterations)
	for i, call := range out.Calls {
		assert.Equal(t, i+1, call.Iteration)
		assert.Equal(t, model.WebSearchToolName, call.Name)
	}

	final := p.Calls()[DefaultMaxIterations]
	assert.Empty(t, final.Tools, "forced final call withdraws tools")
	assert.Contains(t, final.Prompt, DefaultClosingInstruction)
	for _, m := range final.History {
		assert.NotEqual(t, llm.RoleTool, m.Role)
		assert.Empty(t, m.ToolCalls)
	}
}

func TestRunSynthesizesWhenModelKeepsRequestingTools(t *testing.T) {
	p := llmtest.AlwaysSearch("primary")
	c := NewBuilder(chain(t, p)).
		Tools(searchRegistry(t, goodSearch)).
		MaxIterations(2).
		Build()

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)

	assert.Equal(t, 2, out.ToolCallCount)
	assert.True(t, out.Forced)
	assert.NotEmpty(t, out.FinalAnswer)
	assert.Contains(t, out.FinalAnswer, "Result for looping query")
	assert.Equal(t, 3, p.CallCount())
}

func TestRunExhaustedFails(t *testing.T) {
	c := newCoordinator(t, nil,
		llmtest.Failing("primary", llm.KindTimeout),
		llmtest.Failing("secondary", llm.KindRateLimited),
		llmtest.Failing("offline", llm.KindTransport),
	)

	out, err := c.Run(context.Background(), Input{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failover.ErrProviderExhausted))
	assert.Empty(t, out.FinalAnswer)
	assert.Len(t, out.Trace, 3)
}

func TestRunExhaustedMidLoop(t *testing.T) {
	p := llmtest.New("primary",
		llmtest.Step{Response: llmtest.SearchRequest("call_1", "first")},
		llmtest.Step{Err: &llm.ProviderError{Provider: "primary", Kind: llm.KindTransport, Err: errors.New("down")}},
	)
	c := newCoordinator(t, searchRegistry(t, goodSearch), p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failover.ErrProviderExhausted))
	assert.Equal(t, 1, out.ToolCallCount)
	assert.Len(t, out.Trace, 2)
}

func TestRunToolErrorBecomesContent(t *testing.T) {
	p := llmtest.New("primary",
		llmtest.Step{Response: llmtest.SearchRequest("call_1", "anything")},
		llmtest.Step{Response: llm.Answer{Text: "answered without search"}},
	)
	registry := searchRegistry(t, func(ctx context.Context, query string) ([]model.SearchResult, error) {
		return nil, errors.New("search backend down")
	})
	c := newCoordinator(t, registry, p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)

	assert.Equal(t, "answered without search", out.FinalAnswer)
	assert.Equal(t, 1, out.ToolCallCount)
	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Failed())
	assert.Contains(t, out.Results[0].Error, "search backend down")

	history := p.Calls()[1].History
	last := history[len(history)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "search backend down")
	assert.Equal(t, llm.RoleAssistant, history[len(history)-2].Role)
}

func TestRunWebSearchDisallowed(t *testing.T) {
	var searches int
	registry := searchRegistry(t, func(ctx context.Context, query string) ([]model.SearchResult, error) {
		searches++
		return nil, nil
	})
	p := llmtest.New("primary",
		llmtest.Step{Response: llmtest.SearchRequest("call_1", "sneaky")},
		llmtest.Step{Response: llm.Answer{Text: "fine"}},
	)
	c := newCoordinator(t, registry, p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: false})
	require.NoError(t, err)

	assert.Empty(t, p.Calls()[0].Tools)
	assert.Equal(t, 0, searches)
	assert.Equal(t, 1, out.ToolCallCount)
	assert.Contains(t, out.Results[0].Error, "not allowed")
	assert.Equal(t, "fine", out.FinalAnswer)
}

func TestRunUnknownToolCounts(t *testing.T) {
	p := llmtest.New("primary",
		llmtest.Step{Response: llm.ToolRequest{ID: "x", Name: "delete_files", Args: []byte(`{}`)}},
		llmtest.Step{Response: llm.Answer{Text: "ok"}},
	)
	c := newCoordinator(t, searchRegistry(t, goodSearch), p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, 1, out.ToolCallCount)
	assert.Contains(t, out.Results[0].Error, "not found")
}

func TestRunMalformedToolArgs(t *testing.T) {
	p := llmtest.New("primary",
		llmtest.Step{Response: llm.ToolRequest{ID: "x", Name: model.WebSearchToolName, Args: []byte(`{"query":`)}},
		llmtest.Step{Response: llm.Answer{Text: "ok"}},
	)
	searches := 0
	registry := searchRegistry(t, func(ctx context.Context, query string) ([]model.SearchResult, error) {
		searches++
		return goodSearch(ctx, query)
	})
	c := newCoordinator(t, registry, p)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.FinalAnswer)
	assert.Equal(t, 1, out.ToolCallCount)
	assert.Equal(t, 0, searches, "malformed arguments never reach the searcher")
	require.Len(t, out.Results, 1)
	assert.Contains(t, out.Results[0].Error, "invalid arguments")
}

func TestRunDoesNotMutateHistory(t *testing.T) {
	history := make([]llm.ChatMessage, 2, 16)
	history[0] = llm.UserMessage("earlier")
	history[1] = llm.AssistantMessage("reply")
	snapshot := append([]llm.ChatMessage(nil), history...)

	p := llmtest.LoopingSearch("primary", "done")
	c := newCoordinator(t, searchRegistry(t, goodSearch), p)

	_, err := c.Run(context.Background(), Input{Question: "q", History: history, AllowWebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, snapshot, history)
	assert.Equal(t, llm.ChatMessage{}, history[:3][2], "backing array untouched")
	assert.Equal(t, snapshot, p.Calls()[0].History[:2])
}

func TestRunFallsBackBetweenIterations(t *testing.T) {
	primary := llmtest.New("primary",
		llmtest.Step{Response: llmtest.SearchRequest("call_1", "q")},
		llmtest.Step{Err: &llm.ProviderError{Provider: "primary", Kind: llm.KindRateLimited, Err: errors.New("429")}},
	)
	secondary := llmtest.Answering("secondary", "from secondary")
	c := newCoordinator(t, searchRegistry(t, goodSearch), primary, secondary)

	out, err := c.Run(context.Background(), Input{Question: "q", AllowWebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", out.ProviderUsed)
	require.Len(t, out.Trace, 3)
	assert.Equal(t, model.OutcomeRateLimited, out.Trace[1].Outcome)
}

func TestFlattenToolTurns(t *testing.T) {
	req := llmtest.SearchRequest("c1", "golang")
	history := []llm.ChatMessage{
		llm.UserMessage("q"),
		llm.ToolCallMessage(req),
		llm.ToolResultMessage("c1", "web_search", `{"results":[]}`),
	}
	flat := flattenToolTurns(history)
	require.Len(t, flat, 3)
	assert.Equal(t, history[0], flat[0])
	assert.Equal(t, llm.RoleAssistant, flat[1].Role)
	assert.Contains(t, flat[1].Content, "golang")
	assert.Equal(t, llm.RoleUser, flat[2].Role)
	assert.True(t, strings.HasPrefix(flat[2].Content, "[result of web_search]"))
}

func TestSynthesizeAnswerWithoutResults(t *testing.T) {
	got := synthesizeAnswer([]model.ToolResult{{CallID: "a", Error: "down"}})
	assert.Equal(t, "I could not find an answer after 1 searches.", got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "requesting", StateRequesting.String())
	assert.Equal(t, "tool_pending", StateToolPending.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
