package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/network"
	"github.com/c360/symbolws/pkg/tlsutil"
	"github.com/c360/symbolws/protocol"
	"github.com/c360/symbolws/subscription"
)

// Duration is a time.Duration read from and written as a string.
type Duration time.Duration

// UnmarshalText accepts Go duration syntax plus a "d" day suffix.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDurationWithDays(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Config is the complete application configuration.
type Config struct {
	Network       NetworkConfig        `json:"network" yaml:"network"`
	Client        ClientConfig         `json:"client" yaml:"client"`
	Subscriptions []SubscriptionConfig `json:"subscriptions" yaml:"subscriptions"`
	NATS          NATSConfig           `json:"nats" yaml:"nats"`
	Price         PriceConfig          `json:"price" yaml:"price"`
	HTTP          HTTPConfig           `json:"http" yaml:"http"`
	Metrics       MetricsConfig        `json:"metrics" yaml:"metrics"`
	Logging       LoggingConfig        `json:"logging" yaml:"logging"`
}

// NetworkConfig selects the Symbol network and where its nodes come from.
type NetworkConfig struct {
	Name            string   `json:"name" yaml:"name"`
	MaxBlockLag     Duration `json:"max_block_lag" yaml:"max_block_lag"`
	FutureTolerance Duration `json:"future_tolerance" yaml:"future_tolerance"`
	// DirectoryURL overrides the node statistics service of the network.
	DirectoryURL string `json:"directory_url,omitempty" yaml:"directory_url,omitempty"`
	// Nodes pins a fixed websocket endpoint list instead of the directory.
	Nodes []string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// Resolve returns the network with configured overrides applied.
func (n NetworkConfig) Resolve() (network.Network, error) {
	net, err := network.Lookup(n.Name)
	if err != nil {
		return network.Network{}, err
	}
	net = net.WithTolerance(n.MaxBlockLag.Std(), n.FutureTolerance.Std())
	if n.DirectoryURL != "" {
		net.DirectoryURL = n.DirectoryURL
	}
	return net, nil
}

// ClientConfig configures the websocket connection.
type ClientConfig struct {
	ResponseTimeout  Duration      `json:"response_timeout" yaml:"response_timeout"`
	HandshakeTimeout Duration      `json:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     Duration      `json:"write_timeout" yaml:"write_timeout"`
	CloseGrace       Duration      `json:"close_grace" yaml:"close_grace"`
	RequireTLS       bool          `json:"require_tls" yaml:"require_tls"`
	Backoff          BackoffConfig `json:"backoff" yaml:"backoff"`
	// TLS applies to wss:// dials and the node directory.
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// BackoffConfig spaces reconnect attempts.
type BackoffConfig struct {
	Initial    Duration `json:"initial" yaml:"initial"`
	Max        Duration `json:"max" yaml:"max"`
	Multiplier float64  `json:"multiplier" yaml:"multiplier"`
	Jitter     bool     `json:"jitter" yaml:"jitter"`
}

// SubscriptionConfig is a topic subscribed on every open. Addresses apply
// only to address-filtered topics; an empty list subscribes unfiltered.
type SubscriptionConfig struct {
	Topic     string   `json:"topic" yaml:"topic"`
	Addresses []string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
}

// NATSConfig configures the event relay.
type NATSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	URL              string   `json:"url" yaml:"url"`
	Name             string   `json:"name" yaml:"name"`
	Token            string   `json:"token,omitempty" yaml:"token,omitempty"`
	MaxReconnects    int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait    Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	PingInterval     Duration `json:"ping_interval" yaml:"ping_interval"`
	ConnectTimeout   Duration `json:"connect_timeout" yaml:"connect_timeout"`
	DrainTimeout     Duration `json:"drain_timeout" yaml:"drain_timeout"`
	CircuitThreshold int      `json:"circuit_threshold" yaml:"circuit_threshold"`
	MaxBackoff       Duration `json:"max_backoff" yaml:"max_backoff"`
	Prefix           string   `json:"prefix" yaml:"prefix"`
	Events           []string `json:"events,omitempty" yaml:"events,omitempty"`
	PublishTimeout   Duration `json:"publish_timeout" yaml:"publish_timeout"`
}

// PriceConfig configures the price pipeline.
type PriceConfig struct {
	Enabled         bool            `json:"enabled" yaml:"enabled"`
	Symbols         []string        `json:"symbols" yaml:"symbols"`
	Currencies      []string        `json:"currencies" yaml:"currencies"`
	Timezone        string          `json:"timezone" yaml:"timezone"`
	PostgresDSN     string          `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
	Redis           RedisConfig     `json:"redis" yaml:"redis"`
	CoinGecko       CoinGeckoConfig `json:"coingecko" yaml:"coingecko"`
	ImportInterval  Duration        `json:"import_interval" yaml:"import_interval"`
	SummaryInterval Duration        `json:"summary_interval" yaml:"summary_interval"`
	CleanupInterval Duration        `json:"cleanup_interval" yaml:"cleanup_interval"`
	RetentionMonths int             `json:"retention_months" yaml:"retention_months"`
	Workers         int             `json:"workers" yaml:"workers"`
	HistoryTTL      Duration        `json:"history_ttl" yaml:"history_ttl"`
}

// Location resolves Timezone; empty selects the local zone.
func (p PriceConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: timezone %q: %v", errors.ErrInvalidConfig, p.Timezone, err),
			"Config", "Location", "load timezone")
	}
	return loc, nil
}

// RedisConfig configures the latest-price cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string   `json:"addr" yaml:"addr"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int      `json:"db" yaml:"db"`
	TTL      Duration `json:"ttl" yaml:"ttl"`
}

// CoinGeckoConfig configures the price source.
type CoinGeckoConfig struct {
	BaseURL           string   `json:"base_url" yaml:"base_url"`
	APIKey            string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Days              int      `json:"days" yaml:"days"`
	RequestsPerMinute int      `json:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           Duration `json:"timeout" yaml:"timeout"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Enabled         bool                 `json:"enabled" yaml:"enabled"`
	Addr            string               `json:"addr" yaml:"addr"`
	ReadTimeout     Duration             `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration             `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     Duration             `json:"idle_timeout" yaml:"idle_timeout"`
	EndpointTimeout Duration             `json:"endpoint_timeout" yaml:"endpoint_timeout"`
	TLS             tlsutil.ServerConfig `json:"tls" yaml:"tls"`
}

// MetricsConfig optionally serves metrics on a dedicated listener. With an
// empty Addr metrics are served by the HTTP surface only.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Name:            network.Mainnet.Name,
			MaxBlockLag:     Duration(network.DefaultMaxBlockLag),
			FutureTolerance: Duration(network.DefaultFutureTolerance),
		},
		Client: ClientConfig{
			ResponseTimeout:  Duration(45 * time.Second),
			HandshakeTimeout: Duration(10 * time.Second),
			WriteTimeout:     Duration(5 * time.Second),
			CloseGrace:       Duration(2 * time.Second),
			RequireTLS:       true,
			Backoff: BackoffConfig{
				Initial:    Duration(500 * time.Millisecond),
				Max:        Duration(30 * time.Second),
				Multiplier: 2,
				Jitter:     true,
			},
		},
		Subscriptions: []SubscriptionConfig{{Topic: string(protocol.TopicBlock)}},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "symbolws",
			MaxReconnects:    -1,
			ReconnectWait:    Duration(2 * time.Second),
			PingInterval:     Duration(30 * time.Second),
			ConnectTimeout:   Duration(5 * time.Second),
			DrainTimeout:     Duration(10 * time.Second),
			CircuitThreshold: 5,
			MaxBackoff:       Duration(time.Minute),
			Prefix:           "symbol",
			PublishTimeout:   Duration(2 * time.Second),
		},
		Price: PriceConfig{
			Symbols:         []string{"symbol"},
			Currencies:      []string{"jpy", "usd"},
			Redis:           RedisConfig{TTL: Duration(2 * time.Hour)},
			CoinGecko:       CoinGeckoConfig{Days: 90, RequestsPerMinute: 30, Timeout: Duration(30 * time.Second)},
			ImportInterval:  Duration(time.Hour),
			SummaryInterval: Duration(24 * time.Hour),
			CleanupInterval: Duration(24 * time.Hour),
			RetentionMonths: 15,
			Workers:         4,
			HistoryTTL:      Duration(10 * time.Minute),
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			Addr:            ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			EndpointTimeout: Duration(5 * time.Second),
		},
		Metrics: MetricsConfig{Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// SubscriptionList expands the configured subscriptions.
func (c *Config) SubscriptionList() []subscription.Subscription {
	var out []subscription.Subscription
	for _, s := range c.Subscriptions {
		topic := protocol.Topic(s.Topic)
		if len(s.Addresses) == 0 {
			out = append(out, subscription.Subscription{Topic: topic})
			continue
		}
		for _, addr := range s.Addresses {
			out = append(out, subscription.Subscription{Topic: topic, Address: addr})
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "validate configuration")
}

func missing(field string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrMissingConfig, field),
		"Config", "Validate", "validate configuration")
}

// Validate checks the configuration and normalizes names to lower case.
func (c *Config) Validate() error {
	if _, err := c.Network.Resolve(); err != nil {
		return err
	}
	for _, node := range c.Network.Nodes {
		if !strings.HasPrefix(node, "ws://") && !strings.HasPrefix(node, "wss://") {
			return invalid("network.nodes entry %q is not a websocket URL", node)
		}
	}

	cl := c.Client
	if cl.ResponseTimeout < 0 || cl.HandshakeTimeout < 0 || cl.WriteTimeout < 0 || cl.CloseGrace < 0 {
		return invalid("client timeouts cannot be negative")
	}
	if cl.Backoff.Max > 0 && cl.Backoff.Max < cl.Backoff.Initial {
		return invalid("client.backoff.max %s below initial %s", cl.Backoff.Max.Std(), cl.Backoff.Initial.Std())
	}
	if err := cl.TLS.Validate(); err != nil {
		return err
	}

	for i, s := range c.Subscriptions {
		topic := protocol.Topic(s.Topic)
		if !topic.Valid() {
			return invalid("subscriptions[%d]: unknown topic %q", i, s.Topic)
		}
		if len(s.Addresses) > 0 && !topic.AcceptsAddress() {
			return invalid("subscriptions[%d]: topic %q takes no address", i, s.Topic)
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return missing("nats.url")
		}
		if c.NATS.Prefix == "" || strings.ContainsAny(c.NATS.Prefix, " *>") {
			return invalid("nats.prefix %q is not a valid subject prefix", c.NATS.Prefix)
		}
		if c.NATS.ReconnectWait <= 0 || c.NATS.PingInterval <= 0 ||
			c.NATS.ConnectTimeout <= 0 || c.NATS.DrainTimeout <= 0 {
			return invalid("nats reconnect_wait, ping_interval, connect_timeout and drain_timeout must be positive")
		}
		if c.NATS.CircuitThreshold < 1 {
			return invalid("nats.circuit_threshold must be at least 1, got %d", c.NATS.CircuitThreshold)
		}
		if c.NATS.MaxBackoff.Std() < time.Second {
			return invalid("nats.max_backoff must be at least 1s, got %v", c.NATS.MaxBackoff.Std())
		}
		if c.NATS.MaxReconnects < -1 {
			return invalid("nats.max_reconnects must be -1 or more, got %d", c.NATS.MaxReconnects)
		}
	}

	if err := c.validatePrice(); err != nil {
		return err
	}

	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return missing("http.addr")
		}
		if err := c.HTTP.TLS.Validate(); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
		c.Logging.Level = strings.ToLower(c.Logging.Level)
	default:
		return invalid("logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
		c.Logging.Format = strings.ToLower(c.Logging.Format)
	default:
		return invalid("logging.format %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePrice() error {
	p := &c.Price
	if !p.Enabled {
		return nil
	}
	if len(p.Symbols) == 0 {
		return missing("price.symbols")
	}
	if len(p.Currencies) == 0 {
		return missing("price.currencies")
	}
	if p.PostgresDSN == "" {
		return missing("price.postgres_dsn")
	}
	for i := range p.Symbols {
		p.Symbols[i] = strings.ToLower(strings.TrimSpace(p.Symbols[i]))
	}
	for i := range p.Currencies {
		p.Currencies[i] = strings.ToLower(strings.TrimSpace(p.Currencies[i]))
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	if p.ImportInterval <= 0 || p.SummaryInterval <= 0 || p.CleanupInterval <= 0 {
		return invalid("price intervals must be positive")
	}
	if p.RetentionMonths <= 0 {
		return invalid("price.retention_months must be positive")
	}
	return nil
}
