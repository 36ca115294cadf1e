// Package broker defines the capability surface of a raw broker connection
// and channel, and adapts github.com/rabbitmq/amqp091-go to it.
//
// The interfaces mirror the amqp091 API so that *amqp.Channel satisfies
// Channel as-is. Connection needs a thin adapter only because its channel
// factories return the interface type.
//
// # Events
//
// Both Connection and Channel report failures through NotifyClose, following
// amqp091 semantics: an abnormal shutdown delivers one *amqp.Error on the
// receiver, then the receiver is closed. A graceful shutdown closes the
// receiver without sending. Registering on an already closed object closes
// the receiver immediately.
package broker
