package reconnect

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jonwraymond/brokerops/backoff"
	"github.com/jonwraymond/brokerops/broker"
	"github.com/jonwraymond/brokerops/classify"
	"github.com/jonwraymond/brokerops/observe"
)

// State is the supervisor's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Supervisor owns one logical broker connection. It dials through a
// backoff loop, watches the live connection, and dials again when the
// connection closes unexpectedly.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Hooks and the connect callback are never called with a lock held, and
//   may call back into the Supervisor or Connection.
// - At most one raw connection is active at a time.
type Supervisor struct {
	url  string
	fn   ConnectFunc
	opts options
	log  observe.Logger

	scheduler *backoff.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	target  observe.Target
	state   State
	current *Connection
	stopped bool
	gaveUp  error
}

// Connect starts supervising a connection to url and returns immediately.
// fn is called once per attempt; see ConnectFunc.
func Connect(url string, fn ConnectFunc, opts ...Option) *Supervisor {
	s := newSupervisor(url, fn, opts...)
	s.start()
	return s
}

func newSupervisor(url string, fn ConnectFunc, opts ...Option) *Supervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if fn == nil {
		fn = func(*Connection, error) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		url:       url,
		fn:        fn,
		opts:      o,
		scheduler: backoff.NewScheduler(nil),
		ctx:       ctx,
		cancel:    cancel,
		target:    observe.TargetFromURL(o.name, url),
	}
	s.log = o.logger.WithTarget(s.target)

	s.scheduler.OnRetry(s.onRetry)
	if o.configureBackoff != nil {
		o.configureBackoff(s.scheduler)
	}
	return s
}

func (s *Supervisor) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.state = StateConnecting
	s.scheduler.Run(s.attempt, s.giveUp)
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the live connection, or nil between connections.
func (s *Supervisor) Current() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.current
}

// Target returns the telemetry description of the broker endpoint.
func (s *Supervisor) Target() observe.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Scheduler returns the backoff scheduler driving connect attempts.
func (s *Supervisor) Scheduler() *backoff.Scheduler {
	return s.scheduler
}

// Stop cancels any pending attempt and deliberately closes the live
// connection. The callback is not called again, except with ErrStopped for
// an attempt that was dialing at the time. Stop is idempotent.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.scheduler.Cancel()
	s.cancel()
	conn := s.current
	s.state = StateClosed
	s.mu.Unlock()

	s.log.Info(context.Background(), "supervisor stopped")
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !broker.IsIllegalState(err) {
		return err
	}
	return nil
}

func (s *Supervisor) attempt(done func(error)) {
	n := s.scheduler.Attempts()
	target := s.Target()

	var raw broker.Connection
	err := s.opts.inst.TraceAttempt(s.ctx, target, n, func(ctx context.Context) error {
		url, err := s.resolve(ctx)
		if err != nil {
			return err
		}
		raw, err = s.opts.dialer.Dial(ctx, url)
		if err == nil && raw == nil {
			err = broker.ErrNilConnection
		}
		return err
	})

	if err != nil {
		s.failed(n, target, err, done)
		return
	}
	s.connected(n, target, raw, done)
}

func (s *Supervisor) resolve(ctx context.Context) (string, error) {
	if s.opts.resolver == nil {
		return s.url, nil
	}
	url, err := s.opts.resolver(ctx, s.url)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.target.Host == "" {
		if t := observe.TargetFromURL(s.opts.name, url); t.Host != "" {
			s.target = t
			s.log = s.opts.logger.WithTarget(t)
		}
	}
	s.mu.Unlock()
	return url, nil
}

func (s *Supervisor) failed(n int, target observe.Target, err error, done func(error)) {
	cerr := &Error{Kind: KindConnect, Err: err}

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		s.fn(nil, ErrStopped)
		return
	}

	s.opts.onAttempt(Attempt{URL: target.RedactedURL(), Number: n, Outcome: AttemptFailed, Err: cerr})
	s.fn(nil, cerr)

	if s.opts.classifier.Unrecoverable(cerr) {
		done(backoff.Unrecoverable(cerr))
		return
	}
	done(cerr)
}

func (s *Supervisor) connected(n int, target observe.Target, raw broker.Connection, done func(error)) {
	conn := &Connection{sup: s, raw: raw}
	events := raw.NotifyClose(make(chan *amqp.Error, 1))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = raw.Close()
		s.fn(nil, ErrStopped)
		return
	}
	conn.active = true
	s.current = conn
	s.state = StateConnected
	log := s.log
	s.mu.Unlock()

	if r, ok := s.opts.classifier.(classify.Resetter); ok {
		r.Reset()
	}
	go conn.watch(events)

	log.Info(s.ctx, "connected", observe.F("attempt", n))
	s.opts.onAttempt(Attempt{URL: target.RedactedURL(), Number: n, Outcome: AttemptSucceeded})
	s.fn(conn, nil)
	done(nil)
}

func (s *Supervisor) onRetry(attempt int, err error, delay time.Duration) {
	s.logger().Debug(context.Background(), "retry scheduled",
		observe.F("attempt", attempt),
		observe.F("error", err),
		observe.F("delay", delay.String()),
	)
}

func (s *Supervisor) giveUp(err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.gaveUp = err
	log := s.log
	s.mu.Unlock()

	log.Error(context.Background(), "giving up on broker", observe.F("error", err))
}

func (s *Supervisor) logger() observe.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// connectionClosed runs once per raw connection, after its close event.
func (s *Supervisor) connectionClosed(conn *Connection) {
	active, lastErr := conn.markClosed()

	reconnect := active && (lastErr == nil || !classify.Inspect(s.opts.classifier, lastErr))

	s.mu.Lock()
	if s.current != conn {
		s.mu.Unlock()
		return
	}
	if s.stopped {
		reconnect = false
	}
	log := s.log
	target := s.target
	if reconnect {
		s.state = StateConnecting
		// Run starts the first attempt on its own goroutine, so the
		// attempt never runs inside this close handler.
		s.scheduler.Run(s.attempt, s.giveUp)
	} else {
		s.state = StateClosed
	}
	s.mu.Unlock()

	if !reconnect {
		fields := []observe.Field{observe.F("deliberate", !active)}
		if lastErr != nil {
			fields = append(fields, observe.F("error", lastErr))
		}
		log.Info(s.ctx, "connection closed", fields...)
		return
	}

	s.opts.inst.Metrics().RecordReconnect(s.ctx, target)
	log.Warn(s.ctx, "connection lost, reconnecting")
}

// report records err for its origin and hands it to OnError.
func (s *Supervisor) report(err *Error) {
	origin := observe.OriginConnection
	switch err.Kind {
	case KindChannelCreation:
		origin = observe.OriginChannelCreation
	case KindChannelRuntime:
		origin = observe.OriginChannel
	}

	s.opts.inst.Metrics().RecordError(s.ctx, s.Target(), origin)
	s.logger().Warn(s.ctx, "broker error", observe.F("origin", origin), observe.F("error", err.Err))
	s.opts.onError(err)
}
