package protocol

import "strings"

// Topic names a stream of one event kind published by the node.
type Topic string

// Topics published by the node websocket.
const (
	TopicBlock              Topic = "block"
	TopicFinalizedBlock     Topic = "finalizedBlock"
	TopicConfirmedAdded     Topic = "confirmedAdded"
	TopicUnconfirmedAdded   Topic = "unconfirmedAdded"
	TopicUnconfirmedRemoved Topic = "unconfirmedRemoved"
	TopicPartialAdded       Topic = "partialAdded"
	TopicPartialRemoved     Topic = "partialRemoved"
	TopicCosignature        Topic = "cosignature"
	TopicStatus             Topic = "status"
)

var allTopics = []Topic{
	TopicBlock,
	TopicFinalizedBlock,
	TopicConfirmedAdded,
	TopicUnconfirmedAdded,
	TopicUnconfirmedRemoved,
	TopicPartialAdded,
	TopicPartialRemoved,
	TopicCosignature,
	TopicStatus,
}

// Topics returns every known topic in declaration order.
func Topics() []Topic {
	out := make([]Topic, len(allTopics))
	copy(out, allTopics)
	return out
}

// Valid reports whether t is one of the known topics.
func (t Topic) Valid() bool {
	return t.Index() >= 0
}

// Index returns the declaration order of t, or -1 when unknown.
func (t Topic) Index() int {
	for i, known := range allTopics {
		if known == t {
			return i
		}
	}
	return -1
}

// AcceptsAddress reports whether subscriptions to t may be filtered by account address.
// Only the two block topics are global.
func (t Topic) AcceptsAddress() bool {
	return t.Valid() && t != TopicBlock && t != TopicFinalizedBlock
}

// Channel renders the subscription channel name, "<topic>" or "<topic>/<address>".
func (t Topic) Channel(address string) string {
	if address == "" {
		return string(t)
	}
	return string(t) + "/" + address
}

// ParseChannel splits a channel name as sent back by the node into topic and address.
func ParseChannel(channel string) (Topic, string) {
	topic, address, _ := strings.Cut(channel, "/")
	return Topic(topic), address
}

func (t Topic) String() string {
	return string(t)
}
