package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	symerrors "github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/protocol"
)

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []string

	bus.Subscribe(NameOpen, func(Event) { order = append(order, "first") })
	bus.Subscribe(NameOpen, func(Event) { order = append(order, "second") })
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(NameClose, func(Event) { order = append(order, "close") })

	bus.Publish(Open{URL: "ws://node:3000/ws"})
	assert.Equal(t, []string{"first", "second", "all"}, order)
}

func TestBus_Cancel(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	cancel := bus.Subscribe(NameError, func(Event) { calls++ })

	bus.Publish(Error{Err: errors.New("boom")})
	cancel()
	bus.Publish(Error{Err: errors.New("boom")})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount(NameError))
}

func TestBus_ListenerPanicRecovered(t *testing.T) {
	bus := NewBus(nil)
	reached := false
	bus.Subscribe(NameReconnect, func(Event) { panic("listener bug") })
	bus.Subscribe(NameReconnect, func(Event) { reached = true })

	assert.NotPanics(t, func() { bus.Publish(Reconnect{Code: 1006}) })
	assert.True(t, reached)
}

func TestBus_CancelFromListener(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	var cancel func()
	cancel = bus.Subscribe(NameOpen, func(Event) {
		calls++
		cancel()
	})

	bus.Publish(Open{})
	bus.Publish(Open{})
	assert.Equal(t, 1, calls)
}

func TestBus_TypedHelpers(t *testing.T) {
	bus := NewBus(nil)

	var gotBlock protocol.Block
	var gotTx TransactionEvent
	var gotErr error
	var gotClose Close

	bus.OnBlock(func(b protocol.Block) { gotBlock = b })
	bus.OnTransaction(protocol.TopicConfirmedAdded, func(e TransactionEvent) { gotTx = e })
	bus.OnError(func(err error) { gotErr = err })
	bus.OnClose(func(c Close) { gotClose = c })

	bus.Publish(BlockEvent{Block: protocol.Block{Meta: protocol.BlockMeta{Hash: "AB"}}})
	bus.Publish(TransactionEvent{Topic: protocol.TopicConfirmedAdded, Address: "TADDR"})
	bus.Publish(TransactionEvent{Topic: protocol.TopicUnconfirmedAdded, Address: "OTHER"})
	bus.Publish(Error{Err: symerrors.ErrConnectionLost})
	bus.Publish(Close{Code: 4000, Reason: "close instruction"})

	assert.Equal(t, "AB", gotBlock.Meta.Hash)
	assert.Equal(t, "TADDR", gotTx.Address)
	assert.ErrorIs(t, gotErr, symerrors.ErrConnectionLost)
	assert.Equal(t, 4000, gotClose.Code)
}

func TestEvent_Names(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Open{}, "open"},
		{Reconnect{}, "reconnect"},
		{Close{}, "close"},
		{Error{}, "error"},
		{BlockEvent{}, "block"},
		{FinalizedBlockEvent{}, "finalizedBlock"},
		{TransactionEvent{Topic: protocol.TopicPartialAdded}, "partialAdded"},
		{TransactionRemovedEvent{Topic: protocol.TopicUnconfirmedRemoved}, "unconfirmedRemoved"},
		{CosignatureEvent{}, "cosignature"},
		{StatusEvent{}, "status"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.Name())
	}
}

func TestFromFrame(t *testing.T) {
	frame, err := protocol.Decode([]byte(`{"topic":"unconfirmedRemoved/TADDR","data":{"meta":{"hash":"DEAD"}}}`))
	require.NoError(t, err)

	ev, err := FromFrame(frame)
	require.NoError(t, err)
	removed, ok := ev.(TransactionRemovedEvent)
	require.True(t, ok)
	assert.Equal(t, "DEAD", removed.Hash)
	assert.Equal(t, "TADDR", removed.Address)
	assert.Equal(t, "unconfirmedRemoved", ev.Name())

	frame, err = protocol.Decode([]byte(`{"topic":"block","data":{"block":{"height":"12","timestamp":"3400"},"meta":{"hash":"H"}}}`))
	require.NoError(t, err)
	ev, err = FromFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.Uint64(12), ev.(BlockEvent).Block.Block.Height)
}

func TestFromFrame_UnknownTopic(t *testing.T) {
	frame, err := protocol.Decode([]byte(`{"topic":"mystery","data":{}}`))
	require.NoError(t, err)

	_, err = FromFrame(frame)
	require.Error(t, err)
	assert.True(t, symerrors.IsInvalid(err))
}

func TestError_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Error{Err: errors.New("dial failed")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"dial failed"}`, string(b))
}
