package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/brokerops/observe"
)

// Reconnector is the part of a reconnect.Connection a Rotator needs.
type Reconnector interface {
	CloseAndReconnect() error
	Closed() bool
}

// SecretUpdater is implemented by connections that accept a refreshed
// token while open. reconnect.Connection implements it.
type SecretUpdater interface {
	UpdateSecret(newSecret, reason string) error
}

// RotatorConfig configures a Rotator.
type RotatorConfig struct {
	// Lead is how long before token expiry the connection is recycled.
	// Default: 30 seconds
	Lead time.Duration

	// Logger receives rotation events. Default: no-op.
	Logger observe.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// InPlace refreshes the token on connections implementing
	// SecretUpdater instead of reconnecting. A failed update falls back
	// to CloseAndReconnect.
	InPlace bool
}

type stopper interface {
	Stop() bool
}

// Rotator recycles a connection before the token it authenticated with
// expires. Brokers close connections whose token has expired; rotating
// first keeps the outage down to one reconnect.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Only the most recently tracked connection is rotated.
type Rotator struct {
	src    TokenSource
	config RotatorConfig
	after  func(d time.Duration, f func()) stopper

	mu    sync.Mutex
	timer stopper
	gen   uint64
}

// NewRotator creates a Rotator for connections authenticated by src.
func NewRotator(src TokenSource, config RotatorConfig) *Rotator {
	if config.Lead <= 0 {
		config.Lead = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Rotator{
		src:    src,
		config: config,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Track schedules conn for rotation before the current token expires,
// replacing any earlier schedule. Call it from the connect callback.
func (r *Rotator) Track(ctx context.Context, conn Reconnector) error {
	tok, err := r.src.Token(ctx)
	if err != nil {
		return err
	}
	r.schedule(ctx, conn, tok, 0)
	return nil
}

// schedule arms the rotation timer for tok. A nonzero gen reschedules
// only if no Track or Stop has happened since that generation.
func (r *Rotator) schedule(ctx context.Context, conn Reconnector, tok Token, gen uint64) {
	delay := tok.Expiry.Sub(r.config.Now()) - r.config.Lead
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != 0 && gen != r.gen {
		return
	}
	r.stopLocked()
	r.gen++
	next := r.gen
	r.timer = r.after(delay, func() { r.rotate(next, conn) })

	r.config.Logger.Debug(ctx, "connection rotation scheduled",
		observe.F("in", delay.String()),
		observe.F("token_expiry", tok.Expiry.UTC().Format(time.RFC3339)),
	)
}

// Stop cancels the pending rotation.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.stopLocked()
}

func (r *Rotator) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Rotator) rotate(gen uint64, conn Reconnector) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	if conn.Closed() {
		return
	}
	if inv, ok := r.src.(Invalidator); ok {
		inv.Invalidate()
	}

	ctx := context.Background()
	if u, ok := conn.(SecretUpdater); ok && r.config.InPlace {
		if r.refresh(ctx, gen, conn, u) {
			return
		}
	}
	r.config.Logger.Info(ctx, "rotating connection before token expiry")
	if err := conn.CloseAndReconnect(); err != nil {
		r.config.Logger.Warn(ctx, "connection rotation failed", observe.F("error", err))
	}
}

// refresh hands conn a new token and schedules the next rotation. It
// reports false when the caller must reconnect instead.
func (r *Rotator) refresh(ctx context.Context, gen uint64, conn Reconnector, u SecretUpdater) bool {
	tok, err := r.src.Token(ctx)
	if err != nil {
		r.config.Logger.Warn(ctx, "token refresh failed", observe.F("error", err))
		return false
	}
	if err := u.UpdateSecret(tok.Value, "token rotation"); err != nil {
		r.config.Logger.Warn(ctx, "in-place token update failed", observe.F("error", err))
		return false
	}
	r.config.Logger.Info(ctx, "connection token refreshed")
	r.schedule(ctx, conn, tok, gen)
	return true
}
