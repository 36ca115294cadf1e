package backoff

import (
	"fmt"
	"sync"
	"time"
)

// AttemptFunc performs one attempt and reports its outcome through done.
// done may be called from any goroutine; only the first call counts.
type AttemptFunc func(done func(err error))

// Timer is the handle of a pending delay.
type Timer interface {
	Stop() bool
}

// afterFunc schedules f after d. Implementations must not call f
// synchronously.
type afterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler owns an attempt loop: the strategy, the attempt count and the
// pending timer.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Run restarts the loop; a loop that is already running is abandoned.
// - Cancel stops the loop; a done call from an abandoned attempt is ignored.
type Scheduler struct {
	mu         sync.Mutex
	strategy   Strategy
	onRetry    func(attempt int, err error, delay time.Duration)
	after      afterFunc
	attempts   int
	generation uint64
	timer      Timer
	running    bool
}

// NewScheduler creates a scheduler. A nil strategy selects the default
// exponential strategy.
func NewScheduler(strategy Strategy) *Scheduler {
	if strategy == nil {
		strategy = NewExponential(ExponentialConfig{})
	}
	return &Scheduler{
		strategy: strategy,
		after:    realAfterFunc,
	}
}

// SetStrategy replaces the delay strategy. It takes effect on the next
// failed attempt.
func (s *Scheduler) SetStrategy(strategy Strategy) {
	if strategy == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = strategy
}

// Strategy returns the current delay strategy.
func (s *Scheduler) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// OnRetry registers fn to be called each time a retry is scheduled.
func (s *Scheduler) OnRetry(fn func(attempt int, err error, delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = fn
}

// Attempts returns the number of attempts started by the current loop.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Running reports whether a loop is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run starts a new attempt loop. The first attempt starts immediately on a
// new goroutine. onGiveUp is called with the unwrapped error when an
// attempt reports an Unrecoverable error or the strategy returns Stop.
func (s *Scheduler) Run(attempt AttemptFunc, onGiveUp func(error)) {
	s.mu.Lock()
	s.stopTimerLocked()
	s.generation++
	gen := s.generation
	s.attempts = 0
	s.running = true
	s.strategy.Reset()
	s.mu.Unlock()

	go s.invoke(gen, attempt, onGiveUp)
}

// Cancel stops the current loop and its pending timer.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.running = false
	s.stopTimerLocked()
}

func (s *Scheduler) invoke(gen uint64, attempt AttemptFunc, onGiveUp func(error)) {
	s.mu.Lock()
	if gen != s.generation || !s.running {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.attempts++
	n := s.attempts
	s.mu.Unlock()

	var once sync.Once
	attempt(func(err error) {
		once.Do(func() {
			s.done(gen, n, err, attempt, onGiveUp)
		})
	})
}

func (s *Scheduler) done(gen uint64, n int, err error, attempt AttemptFunc, onGiveUp func(error)) {
	s.mu.Lock()
	if gen != s.generation || !s.running {
		s.mu.Unlock()
		return
	}

	if err == nil {
		s.running = false
		s.mu.Unlock()
		return
	}

	if IsUnrecoverable(err) {
		s.running = false
		s.mu.Unlock()
		if onGiveUp != nil {
			onGiveUp(unwrapUnrecoverable(err))
		}
		return
	}

	delay := s.strategy.NextBackOff()
	if delay == Stop {
		s.running = false
		s.mu.Unlock()
		if onGiveUp != nil {
			onGiveUp(fmt.Errorf("%w: %w", ErrStrategyStopped, err))
		}
		return
	}

	onRetry := s.onRetry
	s.timer = s.after(delay, func() {
		s.invoke(gen, attempt, onGiveUp)
	})
	s.mu.Unlock()

	if onRetry != nil {
		onRetry(n, err, delay)
	}
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
