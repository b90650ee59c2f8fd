package natsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/metric"
)

// transitions records status listener calls.
type transitions struct {
	mu  sync.Mutex
	got [][2]ConnectionStatus
}

func (tr *transitions) listen(from, to ConnectionStatus) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.got = append(tr.got, [2]ConnectionStatus{from, to})
}

func (tr *transitions) all() [][2]ConnectionStatus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([][2]ConnectionStatus(nil), tr.got...)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
	assert.True(t, client.LastFailure().IsZero())
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithName("symbolws"),
		WithToken("secret"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithPingInterval(20*time.Second),
		WithConnectTimeout(3*time.Second),
		WithDrainTimeout(4*time.Second),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(30*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "symbolws", client.name)
	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, 20*time.Second, client.pingInterval)
	assert.Equal(t, 3*time.Second, client.connectTimeout)
	assert.Equal(t, 4*time.Second, client.drainTimeout)
	assert.Equal(t, int32(2), client.circuitThreshold)
	assert.Equal(t, 30*time.Second, client.maxBackoff)

	plain, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Len(t, client.connectionOptions(), len(plain.connectionOptions())+2)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"zero threshold", WithCircuitBreakerThreshold(0)},
		{"short max backoff", WithMaxBackoff(500 * time.Millisecond)},
		{"zero ping interval", WithPingInterval(0)},
		{"negative drain timeout", WithDrainTimeout(-time.Second)},
		{"zero connect timeout", WithConnectTimeout(0)},
		{"zero reconnect wait", WithReconnectWait(0)},
		{"max reconnects below -1", WithMaxReconnects(-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	tr := &transitions{}
	client, err := NewClient("nats://invalid:4222", WithStatusListener(tr.listen))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
	assert.False(t, client.LastFailure().IsZero())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
	assert.Equal(t, [][2]ConnectionStatus{{StatusDisconnected, StatusCircuitOpen}}, tr.all())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, client.Health().IsUnhealthy())
	assert.Contains(t, client.Health().Message, "5 failed connects")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
	assert.True(t, client.LastFailure().IsZero())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(10*time.Second),
	)
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.Equal(t, 2*time.Second, client.Backoff())

	client.recordFailure()
	client.recordFailure()
	assert.Equal(t, 4*time.Second, client.Backoff())

	for i := 0; i < 40; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 10*time.Second, client.Backoff())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tr := &transitions{}
	client, err := NewClient("nats://localhost:4222", WithStatusListener(tr.listen))
	require.NoError(t, err)

	client.setStatus(StatusCircuitOpen)
	client.halfOpen()
	assert.Equal(t, StatusDisconnected, client.Status())

	client.setStatus(StatusConnected)
	client.halfOpen()
	assert.Equal(t, StatusConnected, client.Status())

	assert.Equal(t, [][2]ConnectionStatus{
		{StatusDisconnected, StatusCircuitOpen},
		{StatusCircuitOpen, StatusDisconnected},
		{StatusDisconnected, StatusConnected},
	}, tr.all())
}

func TestConnectionStatus_String(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(99): "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "symbol.block", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnect_Unreachable(t *testing.T) {
	tr := &transitions{}
	client, err := NewClient("nats://127.0.0.1:1",
		WithConnectTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
		WithStatusListener(tr.listen),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(1), client.Failures())
	assert.False(t, client.LastFailure().IsZero())
	assert.Equal(t, [][2]ConnectionStatus{
		{StatusDisconnected, StatusConnecting},
		{StatusConnecting, StatusDisconnected},
	}, tr.all())
}

func TestConnect_AfterClose(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestHandlers_StatusAndMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	tr := &transitions{}
	client, err := NewClient("nats://localhost:4222",
		WithMetrics(registry),
		WithStatusListener(tr.listen),
	)
	require.NoError(t, err)
	client.setStatus(StatusConnected)

	client.handleDisconnect(nil, errors.New("broken pipe"))
	assert.Equal(t, StatusReconnecting, client.Status())
	assert.True(t, client.Health().IsDegraded())

	client.handleReconnect(nil)
	assert.Equal(t, StatusConnected, client.Status())
	assert.True(t, client.Health().IsHealthy())
	assert.Equal(t, int64(1), client.Reconnects())
	assert.Equal(t, int64(1), client.Health().Metrics.Reconnects)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(registry.CoreMetrics().NATSReconnects))

	client.handleClosed(nil)
	assert.True(t, client.Health().IsUnhealthy())

	assert.Equal(t, [][2]ConnectionStatus{
		{StatusDisconnected, StatusConnected},
		{StatusConnected, StatusReconnecting},
		{StatusReconnecting, StatusConnected},
		{StatusConnected, StatusDisconnected},
	}, tr.all())
}

func TestHandlers_DisconnectAfterCloseIgnored(t *testing.T) {
	tr := &transitions{}
	client, err := NewClient("nats://localhost:4222", WithStatusListener(tr.listen))
	require.NoError(t, err)
	require.NoError(t, client.Close(context.Background()))

	client.handleDisconnect(nil, errors.New("connection closed"))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Empty(t, tr.all())
}

func TestConcurrentSafety(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	var wg sync.WaitGroup
	const iterations = 100

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.setStatus(StatusConnecting)
			_ = client.Status()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.recordFailure()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			client.resetCircuit()
		}
	}()
	wg.Wait()

	assert.GreaterOrEqual(t, client.Failures(), int32(0))
}
