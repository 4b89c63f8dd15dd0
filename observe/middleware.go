package observe

import (
	"context"
	"time"
)

// OpFunc is one unit of agent work. It returns a short outcome label such
// as "cache", "network" or "offline" alongside any error.
type OpFunc func(ctx context.Context) (outcome string, err error)

// Middleware wraps agent operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Run executes fn inside a span and records its outcome.
func (m *Middleware) Run(ctx context.Context, meta OpMeta, fn OpFunc) (string, error) {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	outcome, err := fn(ctx)
	if outcome == "" && err != nil {
		outcome = "error"
	}

	duration := time.Since(start)
	m.tracer.EndSpan(span, outcome, err)
	m.metrics.RecordOp(ctx, meta, outcome, duration, err)

	opLogger := m.logger.WithOp(meta)
	fields := []Field{
		{Key: "outcome", Value: outcome},
		{Key: "duration_ms", Value: float64(duration.Milliseconds())},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		opLogger.Error(ctx, "operation failed", fields...)
	} else {
		opLogger.Debug(ctx, "operation completed", fields...)
	}
	return outcome, err
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
