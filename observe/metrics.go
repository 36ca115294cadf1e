package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Error origins recorded by Metrics.RecordError.
const (
	OriginConnect         = "connect"
	OriginConnection      = "connection"
	OriginChannelCreation = "channel_creation"
	OriginChannel         = "channel"
)

// Metrics records connection lifecycle metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAttempt records one connect attempt with its duration and outcome.
	RecordAttempt(ctx context.Context, target Target, duration time.Duration, err error)

	// RecordReconnect records that an unexpected close started a new attempt loop.
	RecordReconnect(ctx context.Context, target Target)

	// RecordError records a runtime error by origin (see Origin* constants).
	RecordError(ctx context.Context, target Target, origin string)
}

type otelMetrics struct {
	attempts     metric.Int64Counter
	failures     metric.Int64Counter
	durationHist metric.Float64Histogram
	reconnects   metric.Int64Counter
	errors       metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	attempts, err := meter.Int64Counter(
		"broker.connect.attempts",
		metric.WithDescription("Total number of broker connect attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"broker.connect.failures",
		metric.WithDescription("Total number of failed broker connect attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"broker.connect.duration_ms",
		metric.WithDescription("Broker connect attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter(
		"broker.reconnects",
		metric.WithDescription("Times an unexpected close restarted the connect loop"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, err
	}

	errCount, err := meter.Int64Counter(
		"broker.errors",
		metric.WithDescription("Broker errors observed, by origin"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		attempts:     attempts,
		failures:     failures,
		durationHist: durationHist,
		reconnects:   reconnects,
		errors:       errCount,
	}, nil
}

func targetAttrs(target Target) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("broker.target", target.ID()),
	}
	if addr := target.Address(); addr != "" {
		attrs = append(attrs, attribute.String("broker.address", addr))
	}
	return attrs
}

func (m *otelMetrics) RecordAttempt(ctx context.Context, target Target, duration time.Duration, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	attrs := append(targetAttrs(target), attribute.String("outcome", outcome))
	opt := metric.WithAttributes(attrs...)

	m.attempts.Add(ctx, 1, opt)
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(targetAttrs(target)...))
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *otelMetrics) RecordReconnect(ctx context.Context, target Target) {
	m.reconnects.Add(ctx, 1, metric.WithAttributes(targetAttrs(target)...))
}

func (m *otelMetrics) RecordError(ctx context.Context, target Target, origin string) {
	attrs := append(targetAttrs(target), attribute.String("origin", origin))
	m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type nopMetrics struct{}

func (nopMetrics) RecordAttempt(context.Context, Target, time.Duration, error) {}
func (nopMetrics) RecordReconnect(context.Context, Target)                     {}
func (nopMetrics) RecordError(context.Context, Target, string)                 {}
