package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/brokerops/observe"
)

// Config is the brokerprobe configuration file.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker"`
	Backoff     BackoffConfig     `yaml:"backoff"`
	Publish     PublishConfig     `yaml:"publish"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Credentials CredentialsConfig `yaml:"credentials"`
	HTTP        HTTPConfig        `yaml:"http"`
	Observe     observe.Config    `yaml:"observe"`
}

// BrokerConfig describes the connection. URL may contain ${VAR} and
// secretref:<provider>:<ref> references; they are resolved per attempt.
type BrokerConfig struct {
	Name           string        `yaml:"name"`
	URL            string        `yaml:"url"`
	ConnectionName string        `yaml:"connection_name"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// BackoffConfig selects the retry strategy.
type BackoffConfig struct {
	Strategy     string        `yaml:"strategy"` // exponential|jittered|constant
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Jitter       float64       `yaml:"jitter"`

	// MaxConsecutiveFailures gives up after this many failures in a row.
	// Zero retries forever.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// PublishConfig configures the heartbeat publisher.
type PublishConfig struct {
	Exchange   string        `yaml:"exchange"`
	RoutingKey string        `yaml:"routing_key"`
	Queue      string        `yaml:"queue"`
	Interval   time.Duration `yaml:"interval"`
}

// SecretsConfig passes per-provider settings to secret provider factories.
type SecretsConfig struct {
	Providers map[string]map[string]any `yaml:"providers"`
}

// CredentialsConfig enables JWT passwords.
type CredentialsConfig struct {
	JWT *JWTConfig `yaml:"jwt"`
}

// JWTConfig configures minted broker tokens. Key may be a secretref.
type JWTConfig struct {
	Key      string        `yaml:"key"`
	KeyID    string        `yaml:"key_id"`
	Issuer   string        `yaml:"issuer"`
	Subject  string        `yaml:"subject"`
	Audience string        `yaml:"audience"`
	Scopes   []string      `yaml:"scopes"`
	TTL      time.Duration `yaml:"ttl"`
	Lead     time.Duration `yaml:"rotate_before_expiry"`

	// UpdateInPlace refreshes the token on the open connection instead of
	// reconnecting. Requires a broker that supports update-secret.
	UpdateInPlace bool `yaml:"update_in_place"`
}

// HTTPConfig configures the metrics and health listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

var (
	errMissingURL      = errors.New("broker.url is required")
	errUnknownStrategy = errors.New("unknown backoff strategy")
	errMissingJWTKey   = errors.New("credentials.jwt.key is required")
)

// LoadConfig reads, defaults and validates the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Name == "" {
		c.Broker.Name = "broker"
	}
	if c.Broker.ConnectionName == "" {
		c.Broker.ConnectionName = "brokerprobe"
	}
	if c.Backoff.Strategy == "" {
		c.Backoff.Strategy = "exponential"
	}
	if c.Publish.RoutingKey == "" {
		c.Publish.RoutingKey = c.Publish.Queue
	}
	if c.Publish.RoutingKey == "" {
		c.Publish.RoutingKey = "brokerprobe.heartbeat"
	}
	if c.Publish.Interval <= 0 {
		c.Publish.Interval = 5 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9464"
	}
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = "brokerprobe"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return errMissingURL
	}
	switch c.Backoff.Strategy {
	case "exponential", "jittered", "constant":
	default:
		return fmt.Errorf("%w: %q", errUnknownStrategy, c.Backoff.Strategy)
	}
	if c.Credentials.JWT != nil && c.Credentials.JWT.Key == "" {
		return errMissingJWTKey
	}
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	return nil
}
