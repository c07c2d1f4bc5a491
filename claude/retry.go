package claude

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrRetriesExhausted wraps the last upstream error once every retry attempt
// has been spent. It is distinct from the orchestrator's iteration budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy controls how transient upstream failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the sleep before the first retry; later retries back off
	// exponentially from it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultRetryPolicy matches the upstream client defaults: three attempts
// with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// delay computes the backoff before the given retry attempt (1-based count
// of failures so far).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<(attempt-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retry runs fn up to MaxAttempts times, backing off between attempts, and
// gives up immediately on non-transient errors or context cancellation.
func (p RetryPolicy) retry(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return errors.Join(ErrRetriesExhausted, lastErr)
}

// isTransient classifies errors worth retrying: connection-level failures,
// rate limiting (429), and server-side errors (5xx). Everything else, such
// as authentication or malformed-request responses, fails immediately.
func isTransient(err error) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
