package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/redis/go-redis/v9"

	"github.com/richinex/querygate/model"
)

// DefaultCacheTTL is how long cached search results live.
const DefaultCacheTTL = 15 * time.Minute

// cacheClient is the subset of *redis.Client the cache needs.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSearcher serves repeated queries from Redis. Cache failures are
// logged and bypassed; they never fail a search.
type CachedSearcher struct {
	inner  Searcher
	client cacheClient
	ttl    time.Duration
	prefix string
}

// NewCachedSearcher wraps inner with a Redis cache. ttl <= 0 uses DefaultCacheTTL.
func NewCachedSearcher(inner Searcher, client *redis.Client, ttl time.Duration) *CachedSearcher {
	return newCachedSearcher(inner, client, ttl)
}

func newCachedSearcher(inner Searcher, client cacheClient, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSearcher{inner: inner, client: client, ttl: ttl, prefix: "querygate:search:"}
}

func (s *CachedSearcher) key(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Search returns cached results when present, otherwise delegates and
// stores the answer.
func (s *CachedSearcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	key := s.key(query)

	raw, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached []model.SearchResult
		if jerr := json.Unmarshal([]byte(raw), &cached); jerr == nil {
			log.Debug().Str("query", query).Msg("search cache hit")
			return cached, nil
		}
		log.Warn().Str("key", key).Msg("discarding unreadable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Msg("search cache read failed")
	}

	results, err := s.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(results)
	if err == nil {
		if serr := s.client.Set(ctx, key, data, s.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Msg("search cache write failed")
		}
	}
	return results, nil
}

var _ Searcher = (*CachedSearcher)(nil)
