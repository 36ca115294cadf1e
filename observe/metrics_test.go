package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		return 0
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	target := Target{Host: "rabbit", Port: 5672}

	m.RecordAttempt(ctx, target, 10*time.Millisecond, errors.New("ECONNREFUSED"))
	m.RecordAttempt(ctx, target, 10*time.Millisecond, errors.New("ECONNREFUSED"))
	m.RecordAttempt(ctx, target, 5*time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "broker.connect.attempts"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := sumValue(t, rm, "broker.connect.failures"); got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}

	hist := findMetric(rm, "broker.connect.duration_ms")
	if hist == nil {
		t.Fatal("broker.connect.duration_ms not found")
	}
	if _, ok := hist.Data.(metricdata.Histogram[float64]); !ok {
		t.Errorf("expected Histogram[float64], got %T", hist.Data)
	}
}

func TestMetrics_RecordErrorByOrigin(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	target := Target{Name: "orders"}

	m.RecordError(ctx, target, OriginConnection)
	m.RecordError(ctx, target, OriginChannel)
	m.RecordError(ctx, target, OriginChannel)

	rm := collect(t, reader)
	found := findMetric(rm, "broker.errors")
	if found == nil {
		t.Fatal("broker.errors not found")
	}
	sum := found.Data.(metricdata.Sum[int64])

	byOrigin := map[string]int64{}
	for _, dp := range sum.DataPoints {
		origin, _ := dp.Attributes.Value(attribute.Key("origin"))
		byOrigin[origin.AsString()] += dp.Value
	}
	if byOrigin[OriginConnection] != 1 || byOrigin[OriginChannel] != 2 {
		t.Errorf("errors by origin = %v", byOrigin)
	}
}

func TestMetrics_RecordReconnect(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordReconnect(context.Background(), Target{Name: "orders"})

	if got := sumValue(t, collect(t, reader), "broker.reconnects"); got != 1 {
		t.Errorf("reconnects = %d, want 1", got)
	}
}
