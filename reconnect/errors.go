package reconnect

import "errors"

// Sentinels matched by *Error through errors.Is.
var (
	ErrConnect           = errors.New("reconnect: connect failed")
	ErrConnectionRuntime = errors.New("reconnect: connection error")
	ErrChannelCreation   = errors.New("reconnect: channel creation failed")
	ErrChannelRuntime    = errors.New("reconnect: channel error")
)

// ErrStopped is reported to the callback when Stop wins the race against
// an attempt that was still dialing.
var ErrStopped = errors.New("reconnect: supervisor stopped")

// ErrorKind tells where an error was observed.
type ErrorKind int

const (
	// KindConnect is a failed connect attempt. It is retried unless classified unrecoverable.
	KindConnect ErrorKind = iota
	// KindConnectionRuntime is an error reported by a live connection.
	KindConnectionRuntime
	// KindChannelCreation is a failure to open a channel. The connection is closed.
	KindChannelCreation
	// KindChannelRuntime is an error reported by a live channel.
	KindChannelRuntime
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindConnectionRuntime:
		return "connection"
	case KindChannelCreation:
		return "channel_creation"
	case KindChannelRuntime:
		return "channel"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConnect:
		return ErrConnect
	case KindConnectionRuntime:
		return ErrConnectionRuntime
	case KindChannelCreation:
		return ErrChannelCreation
	case KindChannelRuntime:
		return ErrChannelRuntime
	default:
		return nil
	}
}

func (k ErrorKind) prefix() string {
	switch k {
	case KindConnect:
		return "connect failed: "
	case KindConnectionRuntime:
		return "connection error: "
	case KindChannelCreation:
		return "channel creation failed: "
	case KindChannelRuntime:
		return "channel error: "
	default:
		return "error: "
	}
}

// Error is every error passed to OnError and to the connect callback.
// Its message starts with a prefix naming the origin, e.g.
// "connection error: " or "channel error: ".
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.prefix() + "<nil>"
	}
	return e.Kind.prefix() + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
