// Package telemetry provides observability for the dispatch engine:
// structured logging built on zerolog, Prometheus metrics, and
// OpenTelemetry tracing.
//
// The Metrics type implements engine.Observer, so a Dispatcher reports
// lifecycle events into it without the engine package depending on
// Prometheus. The Tracer wraps an OpenTelemetry provider with
// dispatch-specific span helpers and supports otlp, stdout, and none
// exporters. Logging follows field conventions shared across the
// codebase: execution_id, category, and agent.
package telemetry
