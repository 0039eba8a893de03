package failover

import (
	"sync"
	"time"
)

// Breaker tracks consecutive failures per provider and short-circuits a
// provider for a cooldown once it reaches the threshold. It is the only
// state shared across requests.
type Breaker struct {
	mu        sync.Mutex
	providers map[string]*breakerState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type breakerState struct {
	failures  int
	openUntil time.Time
}

// NewBreaker creates a breaker. If threshold <= 0, breaking is disabled.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		providers: make(map[string]*breakerState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call to provider may proceed. After the cooldown
// a single trial call is let through; its result decides whether the
// breaker closes or reopens.
func (b *Breaker) Allow(provider string) bool {
	if b == nil || b.threshold <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.providers[provider]
	if !ok || st.failures < b.threshold {
		return true
	}
	now := b.now()
	if now.Before(st.openUntil) {
		return false
	}
	// Half-open: hold the breaker shut for other callers while the trial runs.
	st.openUntil = now.Add(b.cooldown)
	return true
}

// Success resets the failure count for provider.
func (b *Breaker) Success(provider string) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.providers, provider)
}

// Failure records a failed call and opens the breaker at the threshold.
func (b *Breaker) Failure(provider string) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.providers[provider]
	if !ok {
		st = &breakerState{}
		b.providers[provider] = st
	}
	st.failures++
	if st.failures >= b.threshold {
		st.openUntil = b.now().Add(b.cooldown)
	}
}

// Open reports whether provider is currently short-circuited.
func (b *Breaker) Open(provider string) bool {
	if b == nil || b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.providers[provider]
	return ok && st.failures >= b.threshold && b.now().Before(st.openUntil)
}
