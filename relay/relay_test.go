package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/protocol"
	symtest "github.com/c360/symbolws/testutil"
)

func TestRelay_PublishesEnvelope(t *testing.T) {
	pub := symtest.NewMockPublisher()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := New(pub, Config{Prefix: "symbol"},
		WithClock(func() time.Time { return fixed }),
		WithEndpoint(func() string { return "wss://node.example:3001/ws" }),
	)
	require.NoError(t, err)

	bus := events.NewBus(nil)
	detach := r.Attach(bus)

	bus.Publish(events.Open{URL: "wss://node.example:3001/ws", Session: "uid-1"})
	bus.Publish(events.TransactionEvent{
		Topic:   protocol.TopicConfirmedAdded,
		Address: "TADDR",
	})

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "symbol.open", msgs[0].Subject)
	assert.Equal(t, "symbol.confirmedAdded.TADDR", msgs[1].Subject)

	var env struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Endpoint  string          `json:"endpoint"`
		Payload   json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Data, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "open", env.Type)
	assert.True(t, fixed.Equal(env.Timestamp))
	assert.Equal(t, "wss://node.example:3001/ws", env.Endpoint)
	assert.JSONEq(t, `{"url":"wss://node.example:3001/ws","session":"uid-1"}`, string(env.Payload))

	detach()
	bus.Publish(events.Close{Code: 4000, Reason: "close instruction"})
	assert.Len(t, pub.Messages(), 2)

	published, failed := r.Stats()
	assert.Equal(t, int64(2), published)
	assert.Equal(t, int64(0), failed)
}

func TestRelay_ErrorPayload(t *testing.T) {
	pub := symtest.NewMockPublisher()
	r, err := New(pub, Config{})
	require.NoError(t, err)

	r.Handle(events.Error{Err: errors.New("connection reset")})

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "symbol.error", msgs[0].Subject)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msgs[0].Data, &env))
	assert.JSONEq(t, `{"error":"connection reset"}`, string(env["payload"]))
	_, hasEndpoint := env["endpoint"]
	assert.False(t, hasEndpoint)
}

func TestRelay_EventFilter(t *testing.T) {
	pub := symtest.NewMockPublisher()
	r, err := New(pub, Config{Prefix: "chain.", Events: []string{"block"}})
	require.NoError(t, err)

	r.Handle(events.Open{})
	r.Handle(events.BlockEvent{})

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chain.block", msgs[0].Subject)
}

func TestRelay_PublishFailureIsContained(t *testing.T) {
	pub := symtest.NewMockPublisher()
	pub.SetError(errors.New("not connected to NATS"))
	registry := metric.NewMetricsRegistry()
	r, err := New(pub, Config{})
	require.NoError(t, err)
	require.NoError(t, r.RegisterMetrics("relay", registry))

	bus := events.NewBus(nil)
	r.Attach(bus)

	delivered := 0
	bus.OnBlock(func(protocol.Block) { delivered++ })
	bus.Publish(events.BlockEvent{})

	assert.Equal(t, 1, delivered, "listeners after the relay still run")
	published, failed := r.Stats()
	assert.Equal(t, int64(0), published)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failedTotal.WithLabelValues("block")))
}

func TestRelay_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	r, err := New(symtest.NewMockPublisher(), Config{})
	require.NoError(t, err)
	require.NoError(t, r.RegisterMetrics("relay", registry))

	r.Handle(events.BlockEvent{})
	r.Handle(events.BlockEvent{})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.publishedTotal.WithLabelValues("block")))

	err = r.RegisterMetrics("relay", registry)
	assert.Error(t, err, "duplicate registration is rejected")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = New(symtest.NewMockPublisher(), Config{Prefix: "symbol.*"})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
