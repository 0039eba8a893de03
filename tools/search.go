// Web Search Tool.
//
// Information Hiding:
// - Search backend selection hidden behind Searcher
// - Snippet truncation and result encoding for the model

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/querygate/model"
)

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) ([]model.SearchResult, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	return f(ctx, query)
}

const (
	// DefaultMaxResults caps the hits returned to the model.
	DefaultMaxResults = 5
	// SnippetLimit is the snippet length, in runes, shown to the model.
	SnippetLimit = 200
)

// Truncate shortens s to limit runes, appending "..." when cut.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// WebSearchTool exposes a Searcher as the web_search tool.
type WebSearchTool struct {
	searcher   Searcher
	maxResults int
}

// NewWebSearchTool creates the tool. maxResults <= 0 uses DefaultMaxResults.
func NewWebSearchTool(searcher Searcher, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &WebSearchTool{searcher: searcher, maxResults: maxResults}
}

// Metadata returns the tool metadata.
func (t *WebSearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        model.WebSearchToolName,
		Description: "Search the web for current information. Use when the provided documents do not answer the question.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The search query", Required: true},
		},
	}
}

type searchArgs struct {
	Query string `json:"query"`
}

// ParseQuery extracts the query argument of a web_search call.
func ParseQuery(args json.RawMessage) (string, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	return strings.TrimSpace(a.Query), nil
}

// Validate validates the arguments.
func (t *WebSearchTool) Validate(args json.RawMessage) error {
	q, err := ParseQuery(args)
	if err != nil {
		return err
	}
	if q == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute runs the search.
func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	q, err := ParseQuery(args)
	if err != nil {
		return FailureResult(err), nil
	}
	if q == "" {
		return FailureResultf("query cannot be empty"), nil
	}

	results, err := t.searcher.Search(ctx, q)
	if err != nil {
		return FailureResult(fmt.Errorf("search failed: %w", err)), nil
	}

	if len(results) > t.maxResults {
		results = results[:t.maxResults]
	}
	trimmed := make([]model.SearchResult, len(results))
	for i, r := range results {
		r.Snippet = Truncate(r.Snippet, SnippetLimit)
		trimmed[i] = r
	}

	out, err := json.Marshal(struct {
		Results []model.SearchResult `json:"results"`
	}{trimmed})
	if err != nil {
		return FailureResult(fmt.Errorf("encode results: %w", err)), nil
	}
	return ToolResult{Output: string(out), Results: trimmed}, nil
}

var _ Tool = (*WebSearchTool)(nil)
