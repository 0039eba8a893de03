// Search service backend.
//
// Information Hiding:
// - Request and response format of the research service /api/search

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/richinex/querygate/model"
)

// APISearcher calls a search service over HTTP.
type APISearcher struct {
	baseURL         string
	resultsPerQuery int
	httpClient      *http.Client
}

// NewAPISearcher creates a client for the service at baseURL.
func NewAPISearcher(baseURL string, resultsPerQuery int) *APISearcher {
	if resultsPerQuery <= 0 {
		resultsPerQuery = DefaultMaxResults
	}
	return &APISearcher{
		baseURL:         strings.TrimRight(baseURL, "/"),
		resultsPerQuery: resultsPerQuery,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

type apiSource struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Href  string `json:"href"`
}

// Search calls POST /api/search with a single query.
func (c *APISearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"queries": []string{query}, "results_per_query": c.resultsPerQuery,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search-service /api/search: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search-service /api/search: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResp(resp, "search-service", "/api/search"); err != nil {
		return nil, err
	}

	var result struct {
		Results []apiSource `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("search-service /api/search: decode: %w", err)
	}

	out := make([]model.SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, model.SearchResult{Title: r.Title, URL: r.Href, Snippet: r.Body})
	}
	return out, nil
}

// checkResp returns an error carrying the upstream body if the status is not 2xx.
func checkResp(resp *http.Response, service, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s %s returned %d: %s", service, path, resp.StatusCode, string(body))
}

var _ Searcher = (*APISearcher)(nil)
