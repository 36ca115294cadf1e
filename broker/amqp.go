package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the amqp091 dialer.
type AMQPConfig struct {
	// ConnectionName is shown in the broker management UI.
	ConnectionName string

	// Heartbeat is the requested heartbeat interval.
	// Default: 10 seconds
	Heartbeat time.Duration

	// DialTimeout bounds the TCP dial plus the TLS/AMQP handshake.
	// Default: 30 seconds
	DialTimeout time.Duration

	// Vhost overrides the virtual host parsed from the URL when set.
	Vhost string

	// TLS is used for amqps:// URLs.
	TLS *tls.Config
}

// AMQPDialer dials RabbitMQ (or any AMQP 0-9-1 broker) through amqp091-go.
type AMQPDialer struct {
	config AMQPConfig
}

// NewAMQPDialer creates a dialer with defaults applied.
func NewAMQPDialer(config AMQPConfig) *AMQPDialer {
	if config.Heartbeat <= 0 {
		config.Heartbeat = 10 * time.Second
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 30 * time.Second
	}
	return &AMQPDialer{config: config}
}

// Config returns the dialer configuration.
func (d *AMQPDialer) Config() AMQPConfig {
	return d.config
}

// Dial opens an AMQP connection to url.
func (d *AMQPDialer) Dial(ctx context.Context, url string) (Connection, error) {
	cfg := amqp.Config{
		Heartbeat:       d.config.Heartbeat,
		Locale:          "en_US",
		Vhost:           d.config.Vhost,
		TLSClientConfig: d.config.TLS,
		Properties:      amqp.NewConnectionProperties(),
		Dial:            d.dialFunc(ctx),
	}
	if d.config.ConnectionName != "" {
		cfg.Properties.SetClientConnectionName(d.config.ConnectionName)
	}

	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{Connection: conn}, nil
}

// dialFunc returns a transport dialer bound to ctx. The handshake deadline
// is cleared by amqp091 once the connection is open.
func (d *AMQPDialer) dialFunc(ctx context.Context) func(network, addr string) (net.Conn, error) {
	timeout := d.config.DialTimeout
	return func(network, addr string) (net.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var nd net.Dialer
		conn, err := nd.DialContext(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// amqpConnection adapts *amqp.Connection to Connection. Everything except
// the channel factories and Properties is promoted from the embedded
// connection.
type amqpConnection struct {
	*amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Properties exposes the connection's Properties field.
func (c *amqpConnection) Properties() amqp.Table { return c.Connection.Properties }

func (c *amqpConnection) ConfirmChannel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return ch, nil
}

var (
	_ Dialer     = (*AMQPDialer)(nil)
	_ Connection = (*amqpConnection)(nil)
)
