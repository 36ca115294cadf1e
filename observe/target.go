package observe

import (
	"net"
	"net/url"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Target describes a broker endpoint for telemetry purposes.
// It never carries credentials.
type Target struct {
	Name   string // Logical connection name (optional)
	Scheme string // amqp or amqps
	Host   string // Broker host
	Port   int    // Broker port
	VHost  string // Virtual host
	User   string // Username (optional)
}

// TargetFromURL builds a Target from an AMQP URL, dropping the password.
// Unparseable URLs yield a Target carrying only name.
func TargetFromURL(name, rawURL string) Target {
	t := Target{Name: name}
	uri, err := amqp.ParseURI(rawURL)
	if err != nil {
		return t
	}
	t.Scheme = uri.Scheme
	t.Host = uri.Host
	t.Port = uri.Port
	t.VHost = uri.Vhost
	t.User = uri.Username
	return t
}

// Address returns host:port, or "" when the host is unknown.
func (t Target) Address() string {
	if t.Host == "" {
		return ""
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ID returns the logical name if set, otherwise the address and vhost.
func (t Target) ID() string {
	if t.Name != "" {
		return t.Name
	}
	addr := t.Address()
	if addr == "" {
		return "unknown"
	}
	if t.VHost != "" && t.VHost != "/" {
		return addr + "/" + t.VHost
	}
	return addr
}

// SpanName returns the deterministic span name for connect attempts.
// Format: broker.connect <id>
func (t Target) SpanName() string {
	return "broker.connect " + t.ID()
}

// RedactedURL renders the target as a URL without a password.
func (t Target) RedactedURL() string {
	if t.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: t.Scheme,
		Host:   t.Address(),
		Path:   "/" + t.VHost,
	}
	if u.Scheme == "" {
		u.Scheme = "amqp"
	}
	if t.User != "" {
		u.User = url.User(t.User)
	}
	return u.String()
}
