// Package observe provides observability primitives for the offline agent.
//
// It is a pure instrumentation library: structured JSON logging, an
// OpenTelemetry tracer and meter, and a Middleware that wraps one agent
// operation (an interception, an installation, a sync run) with a span, an
// outcome counter and a log line. Exporter setup lives in observe/exporters.
package observe
