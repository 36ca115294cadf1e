package reconnect

import (
	"context"

	"github.com/jonwraymond/brokerops/backoff"
	"github.com/jonwraymond/brokerops/broker"
	"github.com/jonwraymond/brokerops/classify"
	"github.com/jonwraymond/brokerops/observe"
)

// ConnectFunc receives the outcome of every connect attempt: (nil, err) on
// failure, (conn, nil) on success.
//
// The connection is watched before the callback runs. If it drops while
// the callback is still working, the callback for the next attempt can run
// concurrently with it, so callbacks must be safe for concurrent use.
type ConnectFunc func(conn *Connection, err error)

// URLResolver turns the configured URL into the one dialed. It runs before
// every attempt.
type URLResolver func(ctx context.Context, url string) (string, error)

// Option configures a Supervisor.
type Option func(*options)

type options struct {
	name             string
	onError          func(error)
	onAttempt        func(Attempt)
	classifier       classify.Policy
	configureBackoff func(*backoff.Scheduler)
	dialer           broker.Dialer
	resolver         URLResolver
	logger           observe.Logger
	inst             *observe.Instrumentation
}

func defaultOptions() options {
	return options{
		onError:    func(error) {},
		onAttempt:  func(Attempt) {},
		classifier: classify.Never,
		dialer:     broker.NewAMQPDialer(broker.AMQPConfig{}),
		logger:     observe.NopLogger(),
		inst:       observe.NopInstrumentation(),
	}
}

// WithName names the target in logs, metrics and health checks.
// Default: host:port/vhost from the URL.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithOnError sets the hook for runtime and channel-creation errors.
// Every error it receives is an *Error.
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithOnAttempt sets a hook called after every connect attempt.
func WithOnAttempt(fn func(Attempt)) Option {
	return func(o *options) {
		if fn != nil {
			o.onAttempt = fn
		}
	}
}

// WithClassifier sets the policy that decides which errors stop
// reconnection. A policy that implements classify.Resetter, such as
// classify.MaxConsecutive, is reset after each successful connect.
func WithClassifier(c classify.Policy) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithConfigureBackoff gives fn the scheduler before the first attempt,
// typically to call SetStrategy with one of the backoff constructors.
func WithConfigureBackoff(fn func(*backoff.Scheduler)) Option {
	return func(o *options) { o.configureBackoff = fn }
}

// WithDialer replaces the amqp091 dialer.
func WithDialer(d broker.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithURLResolver sets a resolver applied to the URL before every attempt.
func WithURLResolver(r URLResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInstrumentation records attempts as spans and metrics.
func WithInstrumentation(inst *observe.Instrumentation) Option {
	return func(o *options) {
		if inst != nil {
			o.inst = inst
		}
	}
}
