// Package events defines the typed events a subscription client emits and the
// bus that fans them out to listeners.
//
// Lifecycle events are Open, Reconnect, Close and Error. Every node topic has its
// own event type carrying the decoded payload. Listeners run synchronously on the
// connection goroutine in registration order, so slow listeners delay frame
// processing; hand work off to a goroutine when it may block.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/protocol"
)

// Lifecycle event names.
const (
	NameOpen      = "open"
	NameReconnect = "reconnect"
	NameClose     = "close"
	NameError     = "error"
)

// Event is the closed set of values a Bus delivers.
type Event interface {
	// Name is the event name listeners subscribe to: a lifecycle name or a topic.
	Name() string
	isEvent()
}

// Open is emitted when the handshake completes.
type Open struct {
	URL     string `json:"url"`
	Session string `json:"session"`
}

// Reconnect is emitted once per lost connection while the client wants to stay connected.
type Reconnect struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// Close is emitted exactly once after the client is closed by its owner.
type Close struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// Error reports a transport or protocol failure. It never ends the client.
type Error struct {
	Err error `json:"-"`
}

// MarshalJSON renders the error message.
func (e Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Error string `json:"error"`
	}{msg})
}

// BlockEvent carries a new block.
type BlockEvent struct {
	Block protocol.Block `json:"block"`
}

// FinalizedBlockEvent carries a finalization notice.
type FinalizedBlockEvent struct {
	FinalizedBlock protocol.FinalizedBlock `json:"finalizedBlock"`
}

// TransactionEvent carries a transaction from confirmedAdded, unconfirmedAdded or partialAdded.
type TransactionEvent struct {
	Topic       protocol.Topic       `json:"topic"`
	Address     string               `json:"address,omitempty"`
	Transaction protocol.Transaction `json:"transaction"`
}

// TransactionRemovedEvent carries the hash from unconfirmedRemoved or partialRemoved.
type TransactionRemovedEvent struct {
	Topic   protocol.Topic `json:"topic"`
	Address string         `json:"address,omitempty"`
	Hash    string         `json:"hash"`
}

// CosignatureEvent carries a cosignature of an aggregate bonded transaction.
type CosignatureEvent struct {
	Address     string               `json:"address,omitempty"`
	Cosignature protocol.Cosignature `json:"cosignature"`
}

// StatusEvent carries a transaction rejection.
type StatusEvent struct {
	Address string          `json:"address,omitempty"`
	Status  protocol.Status `json:"status"`
}

func (Open) Name() string                      { return NameOpen }
func (Reconnect) Name() string                 { return NameReconnect }
func (Close) Name() string                     { return NameClose }
func (Error) Name() string                     { return NameError }
func (BlockEvent) Name() string                { return string(protocol.TopicBlock) }
func (FinalizedBlockEvent) Name() string       { return string(protocol.TopicFinalizedBlock) }
func (e TransactionEvent) Name() string        { return string(e.Topic) }
func (e TransactionRemovedEvent) Name() string { return string(e.Topic) }
func (CosignatureEvent) Name() string          { return string(protocol.TopicCosignature) }
func (StatusEvent) Name() string               { return string(protocol.TopicStatus) }

func (Open) isEvent()                    {}
func (Reconnect) isEvent()               {}
func (Close) isEvent()                   {}
func (Error) isEvent()                   {}
func (BlockEvent) isEvent()              {}
func (FinalizedBlockEvent) isEvent()     {}
func (TransactionEvent) isEvent()        {}
func (TransactionRemovedEvent) isEvent() {}
func (CosignatureEvent) isEvent()        {}
func (StatusEvent) isEvent()             {}

// FromFrame converts a topic frame into its typed event.
func FromFrame(f protocol.Frame) (Event, error) {
	switch f.Topic {
	case protocol.TopicBlock:
		b, err := f.Block()
		if err != nil {
			return nil, err
		}
		return BlockEvent{Block: b}, nil
	case protocol.TopicFinalizedBlock:
		fb, err := f.FinalizedBlock()
		if err != nil {
			return nil, err
		}
		return FinalizedBlockEvent{FinalizedBlock: fb}, nil
	case protocol.TopicConfirmedAdded, protocol.TopicUnconfirmedAdded, protocol.TopicPartialAdded:
		tx, err := f.Transaction()
		if err != nil {
			return nil, err
		}
		return TransactionEvent{Topic: f.Topic, Address: f.Address, Transaction: tx}, nil
	case protocol.TopicUnconfirmedRemoved, protocol.TopicPartialRemoved:
		h, err := f.TransactionHash()
		if err != nil {
			return nil, err
		}
		return TransactionRemovedEvent{Topic: f.Topic, Address: f.Address, Hash: h.Meta.Hash}, nil
	case protocol.TopicCosignature:
		c, err := f.Cosignature()
		if err != nil {
			return nil, err
		}
		return CosignatureEvent{Address: f.Address, Cosignature: c}, nil
	case protocol.TopicStatus:
		s, err := f.Status()
		if err != nil {
			return nil, err
		}
		return StatusEvent{Address: f.Address, Status: s}, nil
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: unknown topic %q", errors.ErrInvalidData, string(f.Topic)),
		"Events", "FromFrame", "map topic")
}
