package claude

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiterAdmitsUnderBudget(t *testing.T) {
	l := NewRateLimiter(3, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, 100); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}

func TestRateLimiterSuspendsOverBudget(t *testing.T) {
	l := NewRateLimiter(1, 0)

	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// The second call must suspend, not fail. Cancellation is the only exit.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire = %v, want context deadline", err)
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	var offset atomic.Int64
	base := time.Now()

	l := NewRateLimiter(1, 0)
	l.now = func() time.Time {
		return base.Add(time.Duration(offset.Load()))
	}

	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// Just past the rolling window, the first entry ages out and the next
	// call is admitted without waiting through a full timer cycle.
	offset.Store(int64(61 * time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Acquire(ctx, 1); err != nil {
		t.Fatalf("Acquire after window expiry: %v", err)
	}
}

func TestRateLimiterTokenBudget(t *testing.T) {
	l := NewRateLimiter(0, 100)

	if err := l.Acquire(context.Background(), 60); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, 60); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("over-budget Acquire = %v, want context deadline", err)
	}
}

func TestRateLimiterOversizedCallAdmittedIntoEmptyWindow(t *testing.T) {
	l := NewRateLimiter(0, 100)

	// A single call bigger than the whole budget would otherwise block
	// forever; it is admitted when the window is empty.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Acquire(ctx, 500); err != nil {
		t.Fatalf("oversized Acquire: %v", err)
	}

	// With the window occupied, the next call suspends as usual.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if err := l.Acquire(ctx2, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("follow-up Acquire = %v, want context deadline", err)
	}
}

func TestRateLimiterDisabledDimensions(t *testing.T) {
	l := NewRateLimiter(0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.Acquire(ctx, 10000); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	testCases := []struct {
		name string
		size int
		want int
	}{
		{name: "empty", size: 0, want: 1},
		{name: "small", size: 3, want: 1},
		{name: "exact", size: 400, want: 100},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateTokens(make([]byte, tc.size)); got != tc.want {
				t.Errorf("EstimateTokens(%d bytes) = %d, want %d", tc.size, got, tc.want)
			}
		})
	}
}
