package resilience

import (
	"context"
	"sync"
	"time"
)

// guard is implemented by every pattern in this package.
type guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Guard positions, outermost first. A call refused by an outer guard never
// reaches an inner one, so a rate-limited call holds no bulkhead slot and
// spends no breaker probe.
const (
	slotRateLimiter = iota
	slotBulkhead
	slotCircuitBreaker
	slotTimeout
	slotCount
)

// Executor runs operations through a fixed stack of guards.
//
// Contract:
//   - Concurrency: safe for concurrent use once built.
//   - Errors: the first guard to refuse decides the error; otherwise the
//     operation's error is returned.
type Executor struct {
	guards  [slotCount]guard
	onError func(error)
	wg      sync.WaitGroup
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor. With no options Execute calls op
// directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter bounds the call rate.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.set(slotRateLimiter, rl, rl != nil) }
}

// WithBulkhead bounds concurrent calls.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.set(slotBulkhead, b, b != nil) }
}

// WithCircuitBreaker refuses calls while cb is open.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.set(slotCircuitBreaker, cb, cb != nil) }
}

// WithTimeout bounds each call to d.
func WithTimeout(d time.Duration) ExecutorOption {
	return WithTimeoutConfig(NewTimeout(TimeoutConfig{Timeout: d}))
}

// WithTimeoutConfig bounds each call with t.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) { e.set(slotTimeout, t, t != nil) }
}

// WithErrorHandler receives the errors of operations started with Go.
func WithErrorHandler(fn func(error)) ExecutorOption {
	return func(e *Executor) { e.onError = fn }
}

func (e *Executor) set(slot int, g guard, ok bool) {
	if ok {
		e.guards[slot] = g
	} else {
		e.guards[slot] = nil
	}
}

// Execute runs op inside every configured guard.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	for slot := slotCount - 1; slot >= 0; slot-- {
		g := e.guards[slot]
		if g == nil {
			continue
		}
		inner := run
		run = func(ctx context.Context) error { return g.Execute(ctx, inner) }
	}
	return run(ctx)
}

// Go runs Execute on a new goroutine. Its error goes to the handler set
// by WithErrorHandler.
func (e *Executor) Go(ctx context.Context, op func(context.Context) error) {
	e.wg.Go(func() {
		if err := e.Execute(ctx, op); err != nil && e.onError != nil {
			e.onError(err)
		}
	})
}

// Wait blocks until every operation started with Go has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}
