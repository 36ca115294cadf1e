package reconnect

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jonwraymond/brokerops/broker"
)

// Connection wraps one raw broker connection delivered to the connect
// callback. It forwards the raw connection's capabilities and adds a
// latched Closed flag and CloseAndReconnect.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Closed never reverts to false; a later reconnect delivers a new Connection.
type Connection struct {
	sup *Supervisor
	raw broker.Connection

	mu        sync.Mutex
	active    bool
	closed    bool
	lastError error
}

// Close deliberately closes the connection. No reconnect follows.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()

	if err := c.raw.Close(); err != nil {
		return err
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// CloseAndReconnect closes the raw connection as if it had failed, so the
// supervisor dials a new one and calls the connect callback again.
func (c *Connection) CloseAndReconnect() error {
	return c.raw.Close()
}

// Closed reports whether the connection has closed.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastError returns the last runtime or channel error recorded on this
// connection, or nil.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Raw returns the wrapped connection.
func (c *Connection) Raw() broker.Connection { return c.raw }

func (c *Connection) IsClosed() bool { return c.raw.IsClosed() }

func (c *Connection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.raw.NotifyClose(receiver)
}

func (c *Connection) NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking {
	return c.raw.NotifyBlocked(receiver)
}

func (c *Connection) LocalAddr() net.Addr  { return c.raw.LocalAddr() }
func (c *Connection) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

func (c *Connection) ConnectionState() tls.ConnectionState { return c.raw.ConnectionState() }

// Properties returns the server properties of the raw connection.
func (c *Connection) Properties() amqp.Table { return c.raw.Properties() }

// UpdateSecret hands the broker a refreshed credential for this
// connection. The connection stays open.
func (c *Connection) UpdateSecret(newSecret, reason string) error {
	return c.raw.UpdateSecret(newSecret, reason)
}

// Channel opens a channel. If that fails, the connection is closed and
// replaced, and the returned error is a KindChannelCreation *Error.
func (c *Connection) Channel() (*Channel, error) {
	return c.openChannel(c.raw.Channel)
}

// ConfirmChannel opens a channel in publisher confirm mode. Failures are
// handled as in Channel.
func (c *Connection) ConfirmChannel() (*Channel, error) {
	return c.openChannel(c.raw.ConfirmChannel)
}

func (c *Connection) openChannel(open func() (broker.Channel, error)) (*Channel, error) {
	raw, err := open()
	if err == nil && raw == nil {
		err = errors.New("broker returned nil channel")
	}
	if err != nil {
		cerr := &Error{Kind: KindChannelCreation, Err: err}
		c.recordError(cerr)
		if closeErr := c.forceClose(); closeErr != nil {
			return nil, errors.Join(cerr, fmt.Errorf("reconnect: close after channel failure: %w", closeErr))
		}
		return nil, cerr
	}

	ch := &Channel{conn: c, raw: raw}
	events := raw.NotifyClose(make(chan *amqp.Error, 1))
	go ch.watch(events)
	return ch, nil
}

// forceClose closes the raw connection without clearing the active
// marker. A connection that is already closing is not an error.
func (c *Connection) forceClose() error {
	err := c.raw.Close()
	if err != nil && broker.IsIllegalState(err) {
		return nil
	}
	return err
}

func (c *Connection) recordError(err *Error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()

	c.sup.report(err)
}

// markClosed latches closed and returns the state the close handler
// decides on.
func (c *Connection) markClosed() (active bool, lastErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active = c.active
	c.active = false
	c.closed = true
	return active, c.lastError
}

// watch drains the raw close notifications: each error first, then the
// close itself when the channel is closed.
func (c *Connection) watch(events <-chan *amqp.Error) {
	for err := range events {
		if err != nil {
			c.recordError(&Error{Kind: KindConnectionRuntime, Err: err})
		}
	}
	c.sup.connectionClosed(c)
}
