package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/symbolws/errors"
)

// Kind classifies an inbound frame.
type Kind int

// Frame kinds.
const (
	KindUnknown Kind = iota
	KindHandshake
	KindTopic
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// Frame is a decoded inbound message. Handshake frames carry only UID;
// topic frames carry Topic, the optional Address suffix and raw Data.
type Frame struct {
	Kind    Kind
	UID     string
	Topic   Topic
	Address string
	Data    json.RawMessage
}

type wireFrame struct {
	UID   string          `json:"uid"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses one inbound frame. Malformed JSON is an error; a well-formed
// object with neither uid nor topic decodes to KindUnknown.
func Decode(raw []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: expected json object", errors.ErrInvalidData),
			"Codec", "Decode", "classify frame")
	}

	var w wireFrame
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Codec", "Decode", "unmarshal frame")
	}

	switch {
	case w.UID != "":
		return Frame{Kind: KindHandshake, UID: w.UID}, nil
	case w.Topic != "":
		topic, address := ParseChannel(w.Topic)
		return Frame{Kind: KindTopic, Topic: topic, Address: address, Data: w.Data}, nil
	default:
		return Frame{Kind: KindUnknown}, nil
	}
}

type outbound struct {
	UID         string `json:"uid"`
	Subscribe   string `json:"subscribe,omitempty"`
	Unsubscribe string `json:"unsubscribe,omitempty"`
}

// SubscribeFrame builds {"uid":"<uid>","subscribe":"<topic>[/<address>]"}.
func SubscribeFrame(uid string, topic Topic, address string) ([]byte, error) {
	channel, err := channelFor(topic, address)
	if err != nil {
		return nil, errors.Wrap(err, "Codec", "SubscribeFrame", "validate subscription")
	}
	return json.Marshal(outbound{UID: uid, Subscribe: channel})
}

// UnsubscribeFrame builds {"uid":"<uid>","unsubscribe":"<topic>[/<address>]"}.
func UnsubscribeFrame(uid string, topic Topic, address string) ([]byte, error) {
	channel, err := channelFor(topic, address)
	if err != nil {
		return nil, errors.Wrap(err, "Codec", "UnsubscribeFrame", "validate subscription")
	}
	return json.Marshal(outbound{UID: uid, Unsubscribe: channel})
}

// ValidateSubscription checks a topic/address pair without building a frame.
func ValidateSubscription(topic Topic, address string) error {
	_, err := channelFor(topic, address)
	return err
}

func channelFor(topic Topic, address string) (string, error) {
	if !topic.Valid() {
		return "", fmt.Errorf("%w: unknown topic %q", errors.ErrInvalidArgument, string(topic))
	}
	if address == "" {
		return topic.Channel(""), nil
	}
	if !topic.AcceptsAddress() {
		return "", fmt.Errorf("%w: topic %q does not accept an address", errors.ErrInvalidArgument, string(topic))
	}
	if bytes.ContainsAny([]byte(address), "/ \"") {
		return "", fmt.Errorf("%w: malformed address %q", errors.ErrInvalidArgument, address)
	}
	return topic.Channel(address), nil
}
