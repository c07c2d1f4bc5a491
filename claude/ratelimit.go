package claude

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces request-per-minute and token-per-minute budgets over a
// rolling window. Acquire blocks until admitting the call would keep both
// budgets intact; it suspends rather than fails under pressure, so the only
// way out without a permit is context cancellation.
//
// One limiter is shared by every session in the process. A single mutex
// serializes the window read-modify-write, which is cheap at the call rates
// the upstream API allows anyway.
type RateLimiter struct {
	mu sync.Mutex

	window        time.Duration
	maxRequests   int
	maxTokens     int
	requestTimes  []time.Time
	tokenEntries  []tokenEntry
	currentTokens int

	now func() time.Time
}

type tokenEntry struct {
	at     time.Time
	tokens int
}

// NewRateLimiter creates a limiter over a 60-second rolling window. A zero or
// negative budget disables that dimension.
func NewRateLimiter(maxRequestsPerMinute, maxTokensPerMinute int) *RateLimiter {
	return &RateLimiter{
		window:      time.Minute,
		maxRequests: maxRequestsPerMinute,
		maxTokens:   maxTokensPerMinute,
		now:         time.Now,
	}
}

// Acquire blocks until the call fits in the current window, then records it.
// estimatedTokens is the caller's upfront guess at the request cost; the
// window tracks estimates, not settled usage, since admission happens before
// the API call.
func (l *RateLimiter) Acquire(ctx context.Context, estimatedTokens int) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.purge(now)

		if l.admits(estimatedTokens) {
			l.requestTimes = append(l.requestTimes, now)
			if estimatedTokens > 0 {
				l.tokenEntries = append(l.tokenEntries, tokenEntry{at: now, tokens: estimatedTokens})
				l.currentTokens += estimatedTokens
			}
			l.mu.Unlock()
			return nil
		}

		wait := l.nextExpiry(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// admits reports whether one more request of the given cost fits. Callers
// must hold the mutex.
func (l *RateLimiter) admits(estimatedTokens int) bool {
	if l.maxRequests > 0 && len(l.requestTimes) >= l.maxRequests {
		return false
	}
	if l.maxTokens > 0 && estimatedTokens > 0 && l.currentTokens+estimatedTokens > l.maxTokens {
		// A single oversized call is admitted into an empty window rather
		// than blocked forever.
		if l.currentTokens > 0 || estimatedTokens <= l.maxTokens {
			return false
		}
	}
	return true
}

// purge drops entries that have left the window. Callers must hold the mutex.
func (l *RateLimiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)

	kept := l.requestTimes[:0]
	for _, t := range l.requestTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.requestTimes = kept

	keptTokens := l.tokenEntries[:0]
	tokens := 0
	for _, e := range l.tokenEntries {
		if e.at.After(cutoff) {
			keptTokens = append(keptTokens, e)
			tokens += e.tokens
		}
	}
	l.tokenEntries = keptTokens
	l.currentTokens = tokens
}

// nextExpiry returns how long until the oldest window entry ages out.
// Callers must hold the mutex.
func (l *RateLimiter) nextExpiry(now time.Time) time.Duration {
	oldest := now
	if len(l.requestTimes) > 0 {
		oldest = l.requestTimes[0]
	}
	if len(l.tokenEntries) > 0 && l.tokenEntries[0].at.Before(oldest) {
		oldest = l.tokenEntries[0].at
	}
	wait := oldest.Add(l.window).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// EstimateTokens approximates the token cost of a payload. Four bytes per
// token is the usual rough figure for English text and JSON.
func EstimateTokens(payload []byte) int {
	n := len(payload) / 4
	if n < 1 {
		n = 1
	}
	return n
}
