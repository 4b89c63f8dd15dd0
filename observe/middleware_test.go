package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type middlewareHarness struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
	mw     *Middleware
}

func newHarness(t *testing.T) *middlewareHarness {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	var logs bytes.Buffer
	return &middlewareHarness{
		spans:  sr,
		reader: reader,
		logs:   &logs,
		mw:     NewMiddleware(&tracerImpl{tracer: tp.Tracer("test")}, metrics, NewLoggerWithWriter("debug", &logs)),
	}
}

func TestMiddleware_RunSuccess(t *testing.T) {
	h := newHarness(t)
	meta := OpMeta{Component: "intercept", Name: "fetch"}

	var sawSpan bool
	outcome, err := h.mw.Run(context.Background(), meta, func(ctx context.Context) (string, error) {
		sawSpan = trace.SpanFromContext(ctx).SpanContext().IsValid()
		return "cache", nil
	})
	if err != nil || outcome != "cache" {
		t.Fatalf("Run() = (%q, %v), want (cache, nil)", outcome, err)
	}
	if !sawSpan {
		t.Error("wrapped function should run inside the span context")
	}

	spans := h.spans.Ended()
	if len(spans) != 1 || spans[0].Name() != "offlinekit.intercept.fetch" {
		t.Fatalf("spans = %v", spans)
	}
	if got := sumValue(t, collect(t, h.reader), "offlinekit.op.total"); got != 1 {
		t.Errorf("offlinekit.op.total = %d, want 1", got)
	}

	entries := decodeLines(t, h.logs)
	if len(entries) != 1 || entries[0]["outcome"] != "cache" || entries[0]["level"] != "debug" {
		t.Errorf("log entries = %v", entries)
	}
}

func TestMiddleware_RunErrorPropagatesUnchanged(t *testing.T) {
	h := newHarness(t)
	sentinel := errors.New("store closed")

	outcome, err := h.mw.Run(context.Background(), OpMeta{Component: "syncq", Name: "run"}, func(context.Context) (string, error) {
		return "", sentinel
	})
	if err != sentinel {
		t.Fatalf("Run() err = %v, want sentinel unchanged", err)
	}
	if outcome != "error" {
		t.Errorf("outcome = %q, want error", outcome)
	}

	if h.spans.Ended()[0].Status().Code != codes.Error {
		t.Error("span status should be Error")
	}
	if got := sumValue(t, collect(t, h.reader), "offlinekit.op.errors"); got != 1 {
		t.Errorf("offlinekit.op.errors = %d, want 1", got)
	}
	e := decodeLines(t, h.logs)[0]
	if e["level"] != "error" || e["error"] != "store closed" {
		t.Errorf("log entry = %v", e)
	}
}

func TestNopMiddleware(t *testing.T) {
	mw := NopMiddleware()
	outcome, err := mw.Run(context.Background(), OpMeta{Name: "x"}, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || outcome != "ok" {
		t.Fatalf("Run() = (%q, %v)", outcome, err)
	}
	if mw.Logger() == nil {
		t.Error("Logger() must not be nil")
	}
}
