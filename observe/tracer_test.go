package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordedTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(tp.Tracer("test")), recorder
}

func attrMap(s sdktrace.ReadOnlySpan) map[string]attribute.Value {
	m := make(map[string]attribute.Value)
	for _, a := range s.Attributes() {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestTracer_AttemptSpan(t *testing.T) {
	tr, recorder := newRecordedTracer()
	target := Target{Host: "rabbit", Port: 5672, VHost: "prod"}

	_, span := tr.StartAttempt(context.Background(), target, 4)
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]

	if s.Name() != "broker.connect rabbit:5672/prod" {
		t.Errorf("span name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", s.SpanKind())
	}
	attrs := attrMap(s)
	if v := attrs["broker.attempt"]; v.AsInt64() != 4 {
		t.Errorf("broker.attempt = %v, want 4", v)
	}
	if v := attrs["broker.vhost"]; v.AsString() != "prod" {
		t.Errorf("broker.vhost = %v", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_RecordsError(t *testing.T) {
	tr, recorder := newRecordedTracer()

	_, span := tr.StartAttempt(context.Background(), Target{Name: "orders"}, 1)
	tr.EndSpan(span, errors.New("ECONNREFUSED"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
	if s.Status().Description != "ECONNREFUSED" {
		t.Errorf("description = %q", s.Status().Description)
	}
	if !attrMap(s)["broker.error"].AsBool() {
		t.Error("broker.error should be true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected an exception event")
	}
}
