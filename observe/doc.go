// Package observe provides observability primitives for broker connections.
//
// It is a pure instrumentation library: it records connect attempts,
// reconnects and runtime errors as OpenTelemetry spans and metrics, and
// offers a small structured Logger interface. Consumers hand an
// Instrumentation to the reconnect supervisor.
package observe
