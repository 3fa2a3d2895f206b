// Package observe provides the telemetry plumbing shared by the plan
// cache components: a structured JSON logger with component scoping and
// secret redaction, and an Observer that wires OpenTelemetry meter and
// tracer providers to a configured exporter.
//
// It is a pure instrumentation library: no execution, no transport, no
// I/O beyond exporter setup. Components receive a Logger and a Meter by
// injection; nothing reads ambient global telemetry state.
package observe
