package broker

import (
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNilConnection indicates a Dialer returned neither a connection nor an error.
var ErrNilConnection = errors.New("broker: dialer returned nil connection")

// IsIllegalState reports whether err means the connection or channel was
// already closing or closed when the operation was attempted.
//
// amqp091 reports this condition with the ErrClosed value, a client-side
// CHANNEL_ERROR that never comes from the server.
func IsIllegalState(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqp.ChannelError && !amqpErr.Server && amqpErr.Reason == amqp.ErrClosed.Reason
	}
	return false
}

// ReplyCode returns the AMQP reply code carried by err, if any.
func ReplyCode(err error) (int, bool) {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code, true
	}
	return 0, false
}
