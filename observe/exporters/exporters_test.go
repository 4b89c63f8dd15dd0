package exporters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
)

func TestNewTracingExporter(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
		unknown bool
	}{
		{name: "stdout"},
		{name: "none"},
		{name: ""},
		{name: "otlp", wantErr: ErrEndpointNotConfigured},
		{name: "otlp", env: map[string]string{"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT": "http://localhost:4317"}},
		{name: "jaeger", wantErr: ErrEndpointNotConfigured},
		{name: "jaeger", env: map[string]string{"OTEL_EXPORTER_JAEGER_ENDPOINT": "http://localhost:4317"}},
		{name: "zipkin", unknown: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
			t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
			t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			exp, err := NewTracingExporter(context.Background(), tt.name, WithWriter(&bytes.Buffer{}))
			switch {
			case tt.unknown:
				if err == nil || !strings.Contains(err.Error(), "unknown exporter") {
					t.Fatalf("err = %v, want unknown exporter", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("NewTracingExporter(%q) error = %v", tt.name, err)
				}
				if exp == nil {
					t.Fatal("expected non-nil exporter")
				}
				_ = exp.Shutdown(context.Background())
			}
		})
	}
}

func TestNewMetricsReader(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	for _, name := range []string{"stdout", "none", ""} {
		reader, err := NewMetricsReader(context.Background(), name, WithWriter(&bytes.Buffer{}))
		if err != nil || reader == nil {
			t.Fatalf("NewMetricsReader(%q) = (%v, %v)", name, reader, err)
		}
	}

	if _, err := NewMetricsReader(context.Background(), "otlp"); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("otlp without endpoint: err = %v, want ErrEndpointNotConfigured", err)
	}
	if _, err := NewMetricsReader(context.Background(), "graphite"); err == nil {
		t.Error("expected error for unknown metrics exporter")
	}
}

func TestNewMetricsReader_PrometheusRegisterer(t *testing.T) {
	reg := promclient.NewRegistry()
	reader, err := NewMetricsReader(context.Background(), "prometheus", WithRegisterer(reg))
	if err != nil {
		t.Fatalf("NewMetricsReader(prometheus) error = %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}

	// The collector is registered with reg, so registering a second
	// prometheus reader on the same registry must fail.
	if _, err := NewMetricsReader(context.Background(), "prometheus", WithRegisterer(reg)); err == nil {
		t.Error("expected duplicate registration error")
	}
}
