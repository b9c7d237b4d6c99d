package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"connectlist/discoveryservice/internal/domain"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SucceedsOnNthAttempt(t *testing.T) {
	var calls atomic.Int32
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		if calls.Add(1) < 3 {
			return &domain.NetworkError{Provider: "p", Err: fmt.Errorf("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryWithBackoff_ExhaustsAllAttempts(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return fmt.Errorf("timeout")
	})
	if err == nil || err.Error() != "timeout" {
		t.Fatalf("expected last error 'timeout', got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return fmt.Errorf("connection reset")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_NonTransientErrorsFailImmediately(t *testing.T) {
	errs := []error{
		&domain.QuotaExceededError{Provider: "youtube", Status: 403, Reason: "quotaExceeded"},
		&domain.ParseError{Provider: "rawg", Err: errors.New("invalid character")},
		&domain.HTTPError{Provider: "tmdb", Status: 404},
		context.Canceled,
	}
	for _, target := range errs {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			calls++
			return target
		})
		if !errors.Is(err, target) {
			t.Fatalf("expected %v, got %v", target, err)
		}
		if calls != 1 {
			t.Fatalf("%v: expected 1 call, got %d", target, calls)
		}
	}
}

func TestRetryWithBackoff_RetriesGatewayStatus(t *testing.T) {
	calls := 0
	_ = RetryWithBackoff(context.Background(), fastRetry(2), func() error {
		calls++
		return &domain.HTTPError{Provider: "tmdb", Status: 503}
	})
	if calls != 2 {
		t.Fatalf("expected 503 to be retried, got %d calls", calls)
	}
}

func TestRetryWithBackoff_MaxDelayCap(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     30 * time.Millisecond,
		Multiplier:   10.0,
	}

	var timestamps []time.Time
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return fmt.Errorf("timeout")
	})

	if len(timestamps) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(timestamps))
	}
	for i := 2; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap > 10*cfg.MaxDelay {
			t.Errorf("gap[%d] = %v exceeds max delay cap of %v", i, gap, cfg.MaxDelay)
		}
	}
}
