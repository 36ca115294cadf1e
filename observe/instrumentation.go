package observe

import (
	"context"
	"time"
)

// Instrumentation bundles tracing, metrics and logging for one broker client.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: the wrapped components are shared, not copied.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation creates an Instrumentation. Nil components are
// replaced with no-ops.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = newNopTracer()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentation{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopInstrumentation records nothing.
func NopInstrumentation() *Instrumentation {
	return NewInstrumentation(nil, nil, nil)
}

// InstrumentationFromObserver builds an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Tracer returns the attempt tracer.
func (i *Instrumentation) Tracer() Tracer { return i.tracer }

// Metrics returns the metrics recorder.
func (i *Instrumentation) Metrics() Metrics { return i.metrics }

// Logger returns the base logger.
func (i *Instrumentation) Logger() Logger { return i.logger }

// WithLogger returns a copy that logs to logger instead.
func (i *Instrumentation) WithLogger(logger Logger) *Instrumentation {
	if logger == nil {
		return i
	}
	cp := *i
	cp.logger = logger
	return &cp
}

// TraceAttempt runs fn as connect attempt number attempt: inside a span,
// timed, and recorded in metrics. The error from fn is returned unchanged.
func (i *Instrumentation) TraceAttempt(ctx context.Context, target Target, attempt int, fn func(context.Context) error) error {
	ctx, span := i.tracer.StartAttempt(ctx, target, attempt)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	i.tracer.EndSpan(span, err)
	i.metrics.RecordAttempt(ctx, target, duration, err)

	fields := []Field{
		F("attempt", attempt),
		F("duration_ms", float64(duration.Milliseconds())),
	}
	log := i.logger.WithTarget(target)
	if err != nil {
		log.Warn(ctx, "connect attempt failed", append(fields, F("error", err))...)
	} else {
		log.Debug(ctx, "connect attempt succeeded", fields...)
	}
	return err
}
