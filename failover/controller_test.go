package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/llm/llmtest"
	"github.com/richinex/querygate/model"
)

func history() []llm.ChatMessage {
	return []llm.ChatMessage{llm.UserMessage("question")}
}

func TestInvokePrimarySucceeds(t *testing.T) {
	primary := llmtest.Answering("primary", "hello")
	secondary := llmtest.Answering("secondary", "unused")
	c, err := New([]Entry{
		{Provider: primary, Timeout: time.Second},
		{Provider: secondary, Timeout: time.Second},
	}, nil)
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), "prompt", history(), nil)
	require.NoError(t, err)
	assert.Equal(t, llm.Answer{Text: "hello"}, res.Response)
	assert.Equal(t, "primary", res.Provider)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, model.OutcomeSuccess, res.Trace[0].Outcome)
	assert.Equal(t, 0, secondary.CallCount())
}

func TestInvokeFallsThroughTimeoutsToOffline(t *testing.T) {
	c, err := New([]Entry{
		{Provider: llmtest.Hanging("primary"), Timeout: 20 * time.Millisecond},
		{Provider: llmtest.Hanging("secondary"), Timeout: 20 * time.Millisecond},
		{Provider: llmtest.Answering("offline", "local answer")},
	}, nil)
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), "prompt", history(), nil)
	require.NoError(t, err)
	assert.Equal(t, "offline", res.Provider)

	require.Len(t, res.Trace, 3)
	assert.Equal(t, model.OutcomeTimeout, res.Trace[0].Outcome)
	assert.Equal(t, model.OutcomeTimeout, res.Trace[1].Outcome)
	last, ok := res.Trace.Last()
	require.True(t, ok)
	assert.Equal(t, model.OutcomeSuccess, last.Outcome)
	assert.Equal(t, "offline", last.ProviderID)
	assert.GreaterOrEqual(t, res.Trace[0].LatencyMs, int64(15))
}

func TestInvokeExhausted(t *testing.T) {
	c, err := New([]Entry{
		{Provider: llmtest.Failing("primary", llm.KindRateLimited), Timeout: time.Second},
		{Provider: llmtest.Failing("secondary", llm.KindTransport), Timeout: time.Second},
		{Provider: llmtest.Failing("offline", llm.KindInvalidResponse)},
	}, nil)
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), "prompt", history(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderExhausted))
	assert.Nil(t, res.Response)

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	require.Len(t, ex.Trace, 3)
	assert.Equal(t, model.OutcomeRateLimited, ex.Trace[0].Outcome)
	assert.Equal(t, model.OutcomeTransportError, ex.Trace[1].Outcome)
	assert.Equal(t, model.OutcomeInvalidResponse, ex.Trace[2].Outcome)
	assert.NotEmpty(t, ex.Trace[0].Err)
	assert.Contains(t, err.Error(), "primary=rate_limited")
}

func TestInvokePassesSameArgumentsToEachProvider(t *testing.T) {
	primary := llmtest.Failing("primary", llm.KindTransport)
	secondary := llmtest.Answering("secondary", "ok")
	c, err := New([]Entry{{Provider: primary}, {Provider: secondary}}, nil)
	require.NoError(t, err)

	tools := []llm.ToolDefinition{{Name: "web_search"}}
	_, err = c.Invoke(context.Background(), "prompt", history(), tools)
	require.NoError(t, err)

	assert.Equal(t, primary.Calls()[0], secondary.Calls()[0])
}

func TestInvokeParentCancellation(t *testing.T) {
	secondary := llmtest.Answering("secondary", "unused")
	c, err := New([]Entry{
		{Provider: llmtest.Hanging("primary")},
		{Provider: secondary},
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := c.Invoke(ctx, "prompt", history(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrProviderExhausted))
	assert.Empty(t, res.Trace)
	assert.Equal(t, 0, secondary.CallCount())
}

func TestInvokeAlreadyCanceled(t *testing.T) {
	primary := llmtest.Answering("primary", "unused")
	c, err := New([]Entry{{Provider: primary}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Invoke(ctx, "prompt", history(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, primary.CallCount())
}

func TestInvokeEntryIDOverridesName(t *testing.T) {
	c, err := New([]Entry{{ID: "primary", Provider: llmtest.Answering("anthropic", "hi")}}, nil)
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), "", history(), nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, "primary", res.Trace[0].ProviderID)
}

func TestInvokeCircuitOpenSkipsProvider(t *testing.T) {
	primary := llmtest.Failing("primary", llm.KindTransport)
	secondary := llmtest.Answering("secondary", "ok")
	c, err := New([]Entry{{Provider: primary}, {Provider: secondary}}, NewBreaker(2, time.Minute))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), "", history(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, primary.CallCount())

	res, err := c.Invoke(context.Background(), "", history(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.CallCount(), "open breaker must not call the provider")
	require.Len(t, res.Trace, 2)
	assert.Equal(t, model.OutcomeCircuitOpen, res.Trace[0].Outcome)
	assert.Equal(t, model.OutcomeSuccess, res.Trace[1].Outcome)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New([]Entry{{ID: "x"}}, nil)
	assert.Error(t, err)

	_, err = New([]Entry{{Provider: llmtest.Answering("p", "x"), Timeout: -time.Second}}, nil)
	assert.Error(t, err)
}

func TestChainTimeout(t *testing.T) {
	bounded, _ := New([]Entry{
		{Provider: llmtest.Answering("a", "x"), Timeout: 2 * time.Second},
		{Provider: llmtest.Answering("b", "x"), Timeout: 3 * time.Second},
	}, nil)
	d, ok := bounded.ChainTimeout()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	unbounded, _ := New([]Entry{
		{Provider: llmtest.Answering("a", "x"), Timeout: 2 * time.Second},
		{Provider: llmtest.Answering("offline", "x")},
	}, nil)
	_, ok = unbounded.ChainTimeout()
	assert.False(t, ok)
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		timedOut bool
		want     model.Outcome
	}{
		{"deadline wins", &llm.ProviderError{Kind: llm.KindTransport, Err: errors.New("x")}, true, model.OutcomeTimeout},
		{"timeout kind", &llm.ProviderError{Kind: llm.KindTimeout, Err: errors.New("x")}, false, model.OutcomeTimeout},
		{"rate limited", &llm.ProviderError{Kind: llm.KindRateLimited, Err: errors.New("x")}, false, model.OutcomeRateLimited},
		{"invalid", &llm.ProviderError{Kind: llm.KindInvalidResponse, Err: errors.New("x")}, false, model.OutcomeInvalidResponse},
		{"canceled kind", &llm.ProviderError{Kind: llm.KindCanceled, Err: errors.New("x")}, false, model.OutcomeTransportError},
		{"plain error", errors.New("boom"), false, model.OutcomeTransportError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeFor(tt.err, tt.timedOut))
		})
	}
}
