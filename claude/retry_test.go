package claude

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return APIError{StatusCode: 529, Message: "overloaded"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	last := APIError{StatusCode: 429, Message: "rate limited"}
	err := fastPolicy(3).retry(context.Background(), func() error {
		calls++
		return last
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
		t.Errorf("last error not preserved in %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonTransientError(t *testing.T) {
	calls := 0
	want := APIError{StatusCode: 401, Message: "bad key"}
	err := fastPolicy(3).retry(context.Background(), func() error {
		calls++
		return want
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Errorf("err = %v, want the 401 passed through", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("a non-transient failure must not be reported as exhaustion")
	}
}

func TestRetryHonorsContextDuringBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := policy.retry(ctx, func() error {
		calls++
		return APIError{StatusCode: 503}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsTransientClassification(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "429", err: APIError{StatusCode: 429}, want: true},
		{name: "500", err: APIError{StatusCode: 500}, want: true},
		{name: "529", err: APIError{StatusCode: 529}, want: true},
		{name: "400", err: APIError{StatusCode: 400}, want: false},
		{name: "401", err: APIError{StatusCode: 401}, want: false},
		{name: "404", err: APIError{StatusCode: 404}, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Errorf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryDelayBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	wants := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, want := range wants {
		if got := p.delay(i + 1); got != want {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, want)
		}
	}
}
