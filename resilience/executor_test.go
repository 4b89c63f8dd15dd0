package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_NoPatterns(t *testing.T) {
	e := NewExecutor()
	called := false
	if err := e.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Fatalf("Execute() = %v, called = %v", err, called)
	}
}

func TestExecutor_Options(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	rl := NewRateLimiter(RateLimiterConfig{})
	b := NewBulkhead(BulkheadConfig{})
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	e := NewExecutor(WithCircuitBreaker(cb), WithRateLimiter(rl), WithBulkhead(b), WithTimeoutConfig(to))
	want := [slotCount]guard{slotRateLimiter: rl, slotBulkhead: b, slotCircuitBreaker: cb, slotTimeout: to}
	if e.guards != want {
		t.Errorf("guards = %v, want %v", e.guards, want)
	}

	if NewExecutor(WithCircuitBreaker(nil)).guards[slotCircuitBreaker] != nil {
		t.Error("a nil breaker must leave its slot empty")
	}
}

func TestExecutor_Ordering(t *testing.T) {
	// A rate-limited call must not consume a bulkhead slot or a breaker probe.
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.1, Burst: 1})
	e := NewExecutor(WithRateLimiter(rl), WithBulkhead(b), WithCircuitBreaker(cb), WithTimeout(time.Second))

	_ = e.Execute(context.Background(), func(context.Context) error { return nil })
	err := e.Execute(context.Background(), func(context.Context) error { return errUnreachable })
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Execute() = %v, want ErrRateLimitExceeded", err)
	}
	if cb.State() != StateClosed || b.Metrics().Rejected != 0 {
		t.Error("inner guards should not see a rate-limited call")
	}
}

func TestExecutor_TimeoutInsideBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	e := NewExecutor(WithCircuitBreaker(cb), WithTimeout(10*time.Millisecond))

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() = %v, want ErrTimeout", err)
	}
	if cb.State() != StateOpen {
		t.Error("a timeout should count as a breaker failure")
	}
}

func TestExecutor_GoAndWait(t *testing.T) {
	var (
		mu   sync.Mutex
		errs []error
	)
	e := NewExecutor(
		WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: 2, MaxWait: time.Second})),
		WithErrorHandler(func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}),
	)

	var done atomic.Int32
	for i := 0; i < 6; i++ {
		e.Go(context.Background(), func(context.Context) error {
			time.Sleep(2 * time.Millisecond)
			done.Add(1)
			if i == 0 {
				return errUnreachable
			}
			return nil
		})
	}
	e.Wait()

	if done.Load() != 6 {
		t.Errorf("completed = %d, want 6", done.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], errUnreachable) {
		t.Errorf("handler errors = %v", errs)
	}
}
