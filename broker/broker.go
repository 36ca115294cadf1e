package broker

import (
	"context"
	"crypto/tls"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dialer opens raw broker connections.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Dial should honor cancellation/deadlines while establishing the transport.
type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// DialerFunc adapts an ordinary function to a Dialer.
type DialerFunc func(ctx context.Context, url string) (Connection, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Connection, error) {
	return f(ctx, url)
}

// Connection is the capability set of a raw broker connection.
type Connection interface {
	// Channel opens a new channel.
	Channel() (Channel, error)

	// ConfirmChannel opens a new channel already placed in publisher confirm mode.
	ConfirmChannel() (Channel, error)

	// Close closes the connection and all of its channels.
	Close() error

	IsClosed() bool
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	ConnectionState() tls.ConnectionState

	// Properties returns the server properties sent during the handshake.
	Properties() amqp.Table

	// UpdateSecret replaces the connection's credential, e.g. an expiring
	// OAuth2 token, without reopening it.
	UpdateSecret(newSecret, reason string) error
}

// Channel is the capability set of a raw broker channel.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error

	Flow(active bool) error
	Tx() error
	TxCommit() error
	TxRollback() error

	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error
	ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error

	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueuePurge(name string, noWait bool) (int, error)
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)

	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	PublishWithDeferredConfirm(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	GetNextPublishSeqNo() uint64

	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Reject(tag uint64, requeue bool) error
	Cancel(consumer string, noWait bool) error

	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyConfirm(ack, nack chan uint64) (chan uint64, chan uint64)
	NotifyFlow(flow chan bool) chan bool
	NotifyReturn(returns chan amqp.Return) chan amqp.Return
	NotifyCancel(cancellations chan string) chan string
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error

	Close() error
	IsClosed() bool
}

// Ensure *amqp.Channel satisfies Channel without an adapter.
var _ Channel = (*amqp.Channel)(nil)
