package client

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/staleness"
	"github.com/c360/symbolws/subscription"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records client metrics into registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithDialer replaces the websocket dialer. HandshakeTimeout from Config is
// applied when the dialer leaves it zero.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithClock drives the response watchdog and block lag checks from clock.
func WithClock(clock staleness.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithBus delivers events to an existing bus.
func WithBus(bus *events.Bus) Option {
	return func(c *Client) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithRegistry records subscriptions in an existing registry.
func WithRegistry(r *subscription.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}
