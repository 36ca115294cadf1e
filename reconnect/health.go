package reconnect

import (
	"context"

	"github.com/jonwraymond/brokerops/health"
)

var _ health.Checker = (*Supervisor)(nil)

// Name returns the target ID used for health reporting.
func (s *Supervisor) Name() string {
	return s.Target().ID()
}

// Check reports connected as healthy, connecting as degraded, and idle or
// closed as unhealthy.
func (s *Supervisor) Check(ctx context.Context) health.Result {
	s.mu.Lock()
	state := s.state
	lastErr := s.gaveUp
	if lastErr == nil && s.current != nil {
		lastErr = s.current.LastError()
	}
	s.mu.Unlock()

	details := map[string]any{
		"state":    state.String(),
		"attempts": s.scheduler.Attempts(),
	}

	var r health.Result
	switch state {
	case StateConnected:
		r = health.Healthy("connected")
	case StateConnecting:
		r = health.Degraded("reconnecting")
	default:
		r = health.Unhealthy(state.String(), lastErr)
	}
	return r.WithDetails(details)
}
