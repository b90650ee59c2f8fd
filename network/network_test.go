package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/errors"
)

func TestLookup(t *testing.T) {
	n, err := Lookup("MainNet")
	require.NoError(t, err)
	assert.Equal(t, "mainnet", n.Name)
	assert.Equal(t, "2021-03-16T00:06:25Z", n.Epoch.Format(time.RFC3339))

	n, err = Lookup(" testnet ")
	require.NoError(t, err)
	assert.Equal(t, "2022-10-31T21:07:47Z", n.Epoch.Format(time.RFC3339))
	assert.Equal(t, "https://testnet.symbol.services", n.DirectoryURL)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("devnet")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownNetwork)
	assert.True(t, errors.IsInvalid(err))
}

func TestBlockTime(t *testing.T) {
	got := Mainnet.BlockTime(60_000)
	assert.Equal(t, Mainnet.Epoch.Add(time.Minute), got)
}

func TestWithTolerance(t *testing.T) {
	n := Testnet.WithTolerance(time.Minute, 0)
	assert.Equal(t, time.Minute, n.MaxBlockLag)
	assert.Equal(t, DefaultFutureTolerance, n.FutureTolerance)
	assert.Equal(t, DefaultMaxBlockLag, Testnet.MaxBlockLag, "original must not change")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Mainnet.Validate())
	assert.Error(t, Network{}.Validate())

	bad := Mainnet
	bad.MaxBlockLag = 0
	assert.ErrorIs(t, bad.Validate(), errors.ErrInvalidConfig)
}
