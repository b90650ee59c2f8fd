package client

import (
	"fmt"
	"time"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/network"
	"github.com/c360/symbolws/pkg/retry"
)

// Config holds the connection settings of a Client.
type Config struct {
	// Network supplies the epoch and block lag tolerances, resolved once at construction.
	Network network.Network `json:"network" yaml:"network"`

	// ResponseTimeout closes the socket with 4001 when no frame arrives in time.
	ResponseTimeout time.Duration `json:"response_timeout" yaml:"response_timeout"`

	// HandshakeTimeout bounds the HTTP upgrade of each dial.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// WriteTimeout bounds every outbound frame.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// CloseGrace is how long to wait for the node to answer a close frame.
	CloseGrace time.Duration `json:"close_grace" yaml:"close_grace"`

	// RequireTLS restricts endpoint picks to wss:// nodes.
	RequireTLS bool `json:"require_tls" yaml:"require_tls"`

	// Backoff spaces reconnect attempts; it resets after every handshake.
	Backoff retry.Backoff `json:"backoff" yaml:"backoff"`
}

// DefaultConfig returns mainnet settings with a 45s response timeout.
func DefaultConfig() Config {
	return Config{
		Network:          network.Mainnet,
		ResponseTimeout:  45 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseGrace:       2 * time.Second,
		RequireTLS:       true,
		Backoff:          retry.DefaultBackoff(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Network.Name == "" {
		c.Network = def.Network
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.CloseGrace == 0 {
		c.CloseGrace = def.CloseGrace
	}
	if c.Backoff == (retry.Backoff{}) {
		c.Backoff = def.Backoff
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "check network")
	}
	if c.ResponseTimeout < 0 || c.HandshakeTimeout < 0 || c.WriteTimeout < 0 || c.CloseGrace < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: timeouts cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check timeouts")
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 || c.Backoff.Multiplier < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: backoff values cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check backoff")
	}
	if c.Backoff.Max > 0 && c.Backoff.Max < c.Backoff.Initial {
		return errors.WrapInvalid(
			fmt.Errorf("%w: backoff max %s below initial %s", errors.ErrInvalidConfig, c.Backoff.Max, c.Backoff.Initial),
			"Config", "Validate", "check backoff")
	}
	return nil
}
