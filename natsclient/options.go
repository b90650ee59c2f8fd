package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/symbolws/metric"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics records connection status into the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithMaxReconnects bounds the server reconnect attempts of an established
// connection; -1 retries forever.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		if max < -1 {
			return fmt.Errorf("max reconnects must be -1 or more, got %d", max)
		}
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the pause between server reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return positive("reconnect wait", d, func(c *Client) { c.reconnectWait = d })
}

// WithPingInterval sets how often the server is pinged to detect a dead link.
func WithPingInterval(d time.Duration) ClientOption {
	return positive("ping interval", d, func(c *Client) { c.pingInterval = d })
}

// WithConnectTimeout bounds a single dial to the server.
func WithConnectTimeout(d time.Duration) ClientOption {
	return positive("connect timeout", d, func(c *Client) { c.connectTimeout = d })
}

// WithDrainTimeout bounds how long Close waits for pending publishes.
func WithDrainTimeout(d time.Duration) ClientOption {
	return positive("drain timeout", d, func(c *Client) { c.drainTimeout = d })
}

// WithCircuitBreakerThreshold sets the number of failed connects that open the circuit.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be positive, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker backoff. It must be at least one second.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			return fmt.Errorf("max backoff must be at least 1s, got %v", d)
		}
		c.maxBackoff = d
		return nil
	}
}

// WithStatusListener is called on every status transition from the goroutine
// that caused it. It must not block.
func WithStatusListener(fn func(from, to ConnectionStatus)) ClientOption {
	return func(c *Client) error {
		c.onStatus = fn
		return nil
	}
}

func positive(name string, d time.Duration, set func(*Client)) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
		set(c)
		return nil
	}
}
