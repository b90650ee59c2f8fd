// Package network describes the Symbol network variants the client can follow.
package network

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/symbolws/errors"
)

// Network holds the per-network constants resolved once at construction.
type Network struct {
	Name string

	// Epoch is the instant block timestamps are measured from.
	Epoch time.Time

	// MaxBlockLag is the largest accepted age of a block relative to wall clock.
	MaxBlockLag time.Duration

	// FutureTolerance is how far ahead of wall clock a block may appear
	// before the node is treated as clock-skewed.
	FutureTolerance time.Duration

	// DirectoryURL is the base URL of the node statistics service.
	DirectoryURL string
}

// Defaults shared by both networks.
const (
	DefaultMaxBlockLag     = 180 * time.Second
	DefaultFutureTolerance = 3 * time.Second
)

// Mainnet is the Symbol main network.
var Mainnet = Network{
	Name:            "mainnet",
	Epoch:           time.Date(2021, time.March, 16, 0, 6, 25, 0, time.UTC),
	MaxBlockLag:     DefaultMaxBlockLag,
	FutureTolerance: DefaultFutureTolerance,
	DirectoryURL:    "https://symbol.services",
}

// Testnet is the Symbol public test network.
var Testnet = Network{
	Name:            "testnet",
	Epoch:           time.Date(2022, time.October, 31, 21, 7, 47, 0, time.UTC),
	MaxBlockLag:     DefaultMaxBlockLag,
	FutureTolerance: DefaultFutureTolerance,
	DirectoryURL:    "https://testnet.symbol.services",
}

// Lookup resolves a network by name, case-insensitively.
func Lookup(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	default:
		return Network{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownNetwork, name),
			"network", "Lookup", "resolve network")
	}
}

// BlockTime converts a block timestamp (milliseconds since the network epoch) to wall time.
func (n Network) BlockTime(timestampMs uint64) time.Time {
	return n.Epoch.Add(time.Duration(timestampMs) * time.Millisecond)
}

// WithTolerance returns a copy with the given lag tolerances; zero values keep the current ones.
func (n Network) WithTolerance(maxLag, future time.Duration) Network {
	if maxLag > 0 {
		n.MaxBlockLag = maxLag
	}
	if future > 0 {
		n.FutureTolerance = future
	}
	return n
}

// Validate checks the network is usable by the staleness monitor.
func (n Network) Validate() error {
	if n.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "network", "Validate", "check name")
	}
	if n.Epoch.IsZero() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "network", "Validate", "check epoch")
	}
	if n.MaxBlockLag <= 0 || n.FutureTolerance < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "network", "Validate", "check tolerance")
	}
	return nil
}
