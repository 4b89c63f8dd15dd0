package observe

import (
	"errors"

	"github.com/jonwraymond/offlinekit/observe/exporters"
)

// Configuration errors returned by Config.Validate.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
)

var (
	// ErrNilObserver is returned by MiddlewareFromObserver.
	ErrNilObserver = errors.New("observe: observer is nil")

	// ErrMissingOpName indicates OpMeta.Name is empty.
	ErrMissingOpName = errors.New("observe: operation name is required")

	// ErrEndpointNotConfigured is returned when the otlp or jaeger
	// exporter is chosen without its endpoint variable.
	ErrEndpointNotConfigured = exporters.ErrEndpointNotConfigured
)

// Sampling bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// Accepted exporter and level names. The empty name is accepted
// everywhere and means the subsystem default.
var (
	ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	ValidLogLevels        = []string{"debug", "info", "warn", "error", ""}
)

// RedactedFields are log keys whose values are never written. Matching
// ignores case. Conversation content travels as payload, body or record.
var RedactedFields = []string{
	"payload",
	"body",
	"record",
	"authorization",
	"access_token",
	"x-api-key",
	"api_key",
	"secret",
	"token",
	"password",
	"credential",
}
