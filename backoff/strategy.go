package backoff

import (
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v5"
	jpbackoff "github.com/jpillora/backoff"
)

// Stop is returned by a Strategy that will not retry again.
const Stop = cbackoff.Stop

// Strategy computes the delay before the next attempt.
//
// Contract:
// - Reset is called by the Scheduler at the start of every Run.
// - NextBackOff is called once per failed attempt and may return Stop.
type Strategy interface {
	NextBackOff() time.Duration
	Reset()
}

// ExponentialConfig configures the default exponential strategy.
type ExponentialConfig struct {
	// InitialDelay is the delay after the first failure.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure.
	// Default: 2.0
	Multiplier float64

	// Jitter is the randomization ratio applied to each delay.
	// Default: 0.1 (±10%)
	Jitter float64

	// DisableJitter turns randomization off.
	DisableJitter bool
}

// DefaultExponentialConfig returns the configuration used when none is given.
func DefaultExponentialConfig() ExponentialConfig {
	return ExponentialConfig{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NewExponential creates an exponential strategy backed by cenkalti/backoff.
func NewExponential(config ExponentialConfig) Strategy {
	defaults := DefaultExponentialConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}
	if config.Jitter <= 0 || config.Jitter >= 1 {
		config.Jitter = defaults.Jitter
	}
	if config.DisableJitter {
		config.Jitter = 0
	}

	b := cbackoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialDelay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = config.Multiplier
	b.RandomizationFactor = config.Jitter
	b.Reset()
	return b
}

// NewJittered creates a full-jitter exponential strategy backed by
// jpillora/backoff. Delays are drawn between min and the current
// exponential step, capped at max.
func NewJittered(min, max time.Duration) Strategy {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return &jitteredStrategy{b: &jpbackoff.Backoff{
		Min:    min,
		Max:    max,
		Factor: 2,
		Jitter: true,
	}}
}

type jitteredStrategy struct {
	b *jpbackoff.Backoff
}

func (j *jitteredStrategy) NextBackOff() time.Duration { return j.b.Duration() }
func (j *jitteredStrategy) Reset()                     { j.b.Reset() }

// NewConstant creates a strategy that always waits d.
func NewConstant(d time.Duration) Strategy {
	return cbackoff.NewConstantBackOff(d)
}

// Limit wraps s so that it returns Stop after maxRetries delays.
// maxRetries <= 0 returns s unchanged.
func Limit(s Strategy, maxRetries int) Strategy {
	if maxRetries <= 0 {
		return s
	}
	return &limitedStrategy{next: s, max: maxRetries}
}

type limitedStrategy struct {
	next Strategy
	max  int

	mu    sync.Mutex
	count int
}

func (l *limitedStrategy) NextBackOff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count >= l.max {
		return Stop
	}
	l.count++
	return l.next.NextBackOff()
}

func (l *limitedStrategy) Reset() {
	l.mu.Lock()
	l.count = 0
	l.mu.Unlock()
	l.next.Reset()
}
