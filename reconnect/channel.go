package reconnect

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jonwraymond/brokerops/broker"
)

// Channel wraps one raw channel of a Connection. Every broker.Channel
// operation is forwarded unchanged.
//
// A channel closed by the broker closes its parent connection, which the
// supervisor then replaces. Close does not.
type Channel struct {
	conn *Connection
	raw  broker.Channel

	mu             sync.Mutex
	closedByClient bool
	closed         bool
}

var _ broker.Channel = (*Channel)(nil)

// Close closes the channel and leaves the parent connection open.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.closedByClient = true
	ch.mu.Unlock()

	if err := ch.raw.Close(); err != nil {
		return err
	}

	ch.mu.Lock()
	ch.closed = true
	ch.mu.Unlock()
	return nil
}

// Closed reports whether the channel has closed. It never reverts.
func (ch *Channel) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Connection returns the parent connection.
func (ch *Channel) Connection() *Connection { return ch.conn }

// Raw returns the wrapped channel.
func (ch *Channel) Raw() broker.Channel { return ch.raw }

func (ch *Channel) watch(events <-chan *amqp.Error) {
	for err := range events {
		if err == nil {
			continue
		}
		// A connection-level close is fanned out to every channel; the
		// connection watcher reports it once.
		if ch.conn.raw.IsClosed() {
			continue
		}
		ch.conn.recordError(&Error{Kind: KindChannelRuntime, Err: err})
	}

	ch.mu.Lock()
	ch.closed = true
	byClient := ch.closedByClient
	ch.mu.Unlock()

	if byClient {
		return
	}
	if err := ch.conn.forceClose(); err != nil {
		panic(fmt.Errorf("reconnect: close connection after channel close: %w", err))
	}
}

func (ch *Channel) IsClosed() bool { return ch.raw.IsClosed() }

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return ch.raw.Qos(prefetchCount, prefetchSize, global)
}

func (ch *Channel) Confirm(noWait bool) error { return ch.raw.Confirm(noWait) }

func (ch *Channel) Flow(active bool) error { return ch.raw.Flow(active) }

func (ch *Channel) Tx() error         { return ch.raw.Tx() }
func (ch *Channel) TxCommit() error   { return ch.raw.TxCommit() }
func (ch *Channel) TxRollback() error { return ch.raw.TxRollback() }

func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.raw.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (ch *Channel) ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.raw.ExchangeDeclarePassive(name, kind, durable, autoDelete, internal, noWait, args)
}

func (ch *Channel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	return ch.raw.ExchangeDelete(name, ifUnused, noWait)
}

func (ch *Channel) ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error {
	return ch.raw.ExchangeBind(destination, key, source, noWait, args)
}

func (ch *Channel) ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error {
	return ch.raw.ExchangeUnbind(destination, key, source, noWait, args)
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return ch.raw.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (ch *Channel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return ch.raw.QueueDeclarePassive(name, durable, autoDelete, exclusive, noWait, args)
}

func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return ch.raw.QueueBind(name, key, exchange, noWait, args)
}

func (ch *Channel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	return ch.raw.QueueUnbind(name, key, exchange, args)
}

func (ch *Channel) QueuePurge(name string, noWait bool) (int, error) {
	return ch.raw.QueuePurge(name, noWait)
}

func (ch *Channel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	return ch.raw.QueueDelete(name, ifUnused, ifEmpty, noWait)
}

func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return ch.raw.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (ch *Channel) PublishWithDeferredConfirm(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	return ch.raw.PublishWithDeferredConfirm(exchange, key, mandatory, immediate, msg)
}

func (ch *Channel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	return ch.raw.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (ch *Channel) GetNextPublishSeqNo() uint64 { return ch.raw.GetNextPublishSeqNo() }

func (ch *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return ch.raw.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (ch *Channel) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return ch.raw.ConsumeWithContext(ctx, queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (ch *Channel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	return ch.raw.Get(queue, autoAck)
}

func (ch *Channel) Ack(tag uint64, multiple bool) error { return ch.raw.Ack(tag, multiple) }

func (ch *Channel) Nack(tag uint64, multiple, requeue bool) error {
	return ch.raw.Nack(tag, multiple, requeue)
}

func (ch *Channel) Reject(tag uint64, requeue bool) error { return ch.raw.Reject(tag, requeue) }

func (ch *Channel) Cancel(consumer string, noWait bool) error {
	return ch.raw.Cancel(consumer, noWait)
}

func (ch *Channel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	return ch.raw.NotifyPublish(confirm)
}

func (ch *Channel) NotifyConfirm(ack, nack chan uint64) (chan uint64, chan uint64) {
	return ch.raw.NotifyConfirm(ack, nack)
}

func (ch *Channel) NotifyFlow(flow chan bool) chan bool { return ch.raw.NotifyFlow(flow) }

func (ch *Channel) NotifyReturn(returns chan amqp.Return) chan amqp.Return {
	return ch.raw.NotifyReturn(returns)
}

func (ch *Channel) NotifyCancel(cancellations chan string) chan string {
	return ch.raw.NotifyCancel(cancellations)
}

func (ch *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return ch.raw.NotifyClose(receiver)
}
