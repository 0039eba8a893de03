package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/querygate/model"
)

func staticSearcher(results ...model.SearchResult) Searcher {
	return SearcherFunc(func(ctx context.Context, query string) ([]model.SearchResult, error) {
		return results, nil
	})
}

func TestWebSearchToolValidation(t *testing.T) {
	tool := NewWebSearchTool(staticSearcher(), 0)

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{name: "valid query", args: `{"query":"golang"}`, wantErr: false},
		{name: "empty query", args: `{"query":""}`, wantErr: true},
		{name: "whitespace query", args: `{"query":"   "}`, wantErr: true},
		{name: "missing query", args: `{}`, wantErr: true},
		{name: "invalid json", args: `{invalid}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.Validate(json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebSearchToolExecute(t *testing.T) {
	long := strings.Repeat("é", 250)
	tool := NewWebSearchTool(staticSearcher(
		model.SearchResult{Title: "One", URL: "https://one.example", Snippet: long},
		model.SearchResult{Title: "Two", URL: "https://two.example", Snippet: "short"},
		model.SearchResult{Title: "Three", URL: "https://three.example", Snippet: "cut"},
	), 2)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Len(t, res.Results, 2)

	assert.Equal(t, strings.Repeat("é", 200)+"...", res.Results[0].Snippet)
	assert.Equal(t, "short", res.Results[1].Snippet)

	var decoded struct {
		Results []model.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &decoded))
	assert.Equal(t, res.Results, decoded.Results)
}

func TestWebSearchToolSearchFailure(t *testing.T) {
	tool := NewWebSearchTool(SearcherFunc(func(ctx context.Context, query string) ([]model.SearchResult, error) {
		return nil, errors.New("backend down")
	}), 0)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Contains(t, res.Error.Error(), "backend down")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("", 10))
}

func TestToolMetadataDefinition(t *testing.T) {
	def := NewWebSearchTool(staticSearcher(), 0).Metadata().Definition()
	assert.Equal(t, model.WebSearchToolName, def.Name)
	assert.Equal(t, "object", def.Parameters["type"])
	assert.Equal(t, []string{"query"}, def.Parameters["required"])

	props := def.Parameters["properties"].(map[string]interface{})
	query := props["query"].(map[string]interface{})
	assert.Equal(t, "string", query["type"])
}

func TestRegistry(t *testing.T) {
	r, err := WithWebSearch(staticSearcher())
	require.NoError(t, err)

	assert.True(t, r.Has(model.WebSearchToolName))
	assert.Equal(t, []string{model.WebSearchToolName}, r.Names())
	require.Len(t, r.Definitions(), 1)

	err = r.Register(NewWebSearchTool(staticSearcher(), 0))
	assert.Error(t, err, "duplicate registration")

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

// flakyTool fails a fixed number of times before succeeding.
type flakyTool struct {
	BaseTool
	failures int32
	calls    atomic.Int32
	message  string
}

func (f *flakyTool) Metadata() ToolMetadata { return ToolMetadata{Name: "flaky"} }

func (f *flakyTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return FailureResultf("%s", f.message), nil
	}
	return SuccessResult("ok"), nil
}

func TestExecutorRetriesTransientFailure(t *testing.T) {
	tool := &flakyTool{failures: 1, message: "connection reset"}
	e := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: 2})

	res := e.Run(context.Background(), tool, json.RawMessage(`{}`))
	assert.True(t, res.Success())
	assert.Equal(t, int32(2), tool.calls.Load())
}

func TestExecutorGivesUpAfterAttempts(t *testing.T) {
	tool := &flakyTool{failures: 10, message: "connection reset"}
	e := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: 2})

	res := e.Run(context.Background(), tool, json.RawMessage(`{}`))
	require.False(t, res.Success())
	assert.Contains(t, res.Error.Error(), "failed after 2 attempts")
	assert.Equal(t, int32(2), tool.calls.Load())
}

func TestExecutorDoesNotRetryClientErrors(t *testing.T) {
	tool := &flakyTool{failures: 10, message: "search-service /api/search returned 400: bad"}
	e := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: 3})

	res := e.Run(context.Background(), tool, json.RawMessage(`{}`))
	assert.False(t, res.Success())
	assert.Equal(t, int32(1), tool.calls.Load())
}

func TestExecutorValidationFailure(t *testing.T) {
	e := NewDefaultExecutor()
	tool := NewWebSearchTool(staticSearcher(), 0)

	res := e.Run(context.Background(), tool, json.RawMessage(`{"query":""}`))
	require.False(t, res.Success())
	assert.Contains(t, res.Error.Error(), "validation failed")
}

func TestExecutorTimeout(t *testing.T) {
	slow := NewWebSearchTool(SearcherFunc(func(ctx context.Context, query string) ([]model.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 0)
	e := NewExecutor(ToolConfig{TimeoutSecs: 1, MaxRetries: 1})

	start := time.Now()
	res := e.Run(context.Background(), slow, json.RawMessage(`{"query":"q"}`))
	assert.False(t, res.Success())
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestToolConfigDefaults(t *testing.T) {
	var c ToolConfig
	assert.Equal(t, 10*time.Second, c.Timeout())
	assert.Equal(t, uint32(2), c.Retries())

	var nilConfig *ToolConfig
	assert.Equal(t, uint32(2), nilConfig.Retries())
}

func TestToolResultJSON(t *testing.T) {
	ok, err := json.Marshal(SuccessResult("done"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"output":"done"}`, string(ok))

	failed, err := json.Marshal(FailureResultf("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"output":"","error":"boom"}`, string(failed))
}
