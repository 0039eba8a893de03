// DuckDuckGo HTML search backend.
//
// Information Hiding:
// - Endpoint, request headers and HTML layout of the results page
// - Redirect link unwrapping

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/richinex/querygate/model"
)

const (
	// DefaultDuckDuckGoURL is the JavaScript-free results endpoint.
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	defaultUserAgent     = "Mozilla/5.0 (compatible; querygate/1.0)"
)

// DuckDuckGoSearcher scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGoSearcher struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// DuckDuckGoOption configures a DuckDuckGoSearcher.
type DuckDuckGoOption func(*DuckDuckGoSearcher)

// WithDuckDuckGoURL sets a custom endpoint.
func WithDuckDuckGoURL(baseURL string) DuckDuckGoOption {
	return func(s *DuckDuckGoSearcher) {
		s.baseURL = baseURL
	}
}

// WithDuckDuckGoHTTPClient sets a custom HTTP client.
func WithDuckDuckGoHTTPClient(c *http.Client) DuckDuckGoOption {
	return func(s *DuckDuckGoSearcher) {
		s.httpClient = c
	}
}

// NewDuckDuckGoSearcher creates a searcher.
func NewDuckDuckGoSearcher(opts ...DuckDuckGoOption) *DuckDuckGoSearcher {
	s := &DuckDuckGoSearcher{
		baseURL:    DefaultDuckDuckGoURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search fetches and parses one results page.
func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	reqURL := s.baseURL + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("duckduckgo returned %d: %s", resp.StatusCode, string(body))
	}

	return parseDuckDuckGo(resp.Body)
}

func parseDuckDuckGo(r io.Reader) ([]model.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	results := make([]model.SearchResult, 0, 10)
	doc.Find(".result").Each(func(i int, sel *goquery.Selection) {
		if sel.HasClass("result--ad") {
			return
		}
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if !ok || title == "" {
			return
		}
		target := unwrapRedirect(href)
		if target == "" {
			return
		}
		results = append(results, model.SearchResult{
			Title:   title,
			URL:     target,
			Snippet: strings.Join(strings.Fields(sel.Find(".result__snippet").Text()), " "),
		})
	})
	return results, nil
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<target> into target.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

var _ Searcher = (*DuckDuckGoSearcher)(nil)
