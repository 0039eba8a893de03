package tools

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/richinex/querygate/model"
)

// DefaultSearchRate is the default number of searches per second.
const DefaultSearchRate = 1

// RateLimitedSearcher throttles calls to an inner Searcher.
type RateLimitedSearcher struct {
	inner   Searcher
	limiter *rate.Limiter
}

// NewRateLimitedSearcher allows requestsPerSecond searches with an equal
// burst. requestsPerSecond <= 0 uses DefaultSearchRate.
func NewRateLimitedSearcher(inner Searcher, requestsPerSecond int) *RateLimitedSearcher {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultSearchRate
	}
	return &RateLimitedSearcher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// Search waits for the limiter, then delegates.
func (s *RateLimitedSearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}
	return s.inner.Search(ctx, query)
}

var _ Searcher = (*RateLimitedSearcher)(nil)
