package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/symbolws/protocol"
)

// Listener receives events.
type Listener func(Event)

type entry struct {
	id       uint64
	listener Listener
}

// Bus delivers events to listeners registered by name or for all events.
// It is safe for concurrent use; Publish snapshots listeners before calling them,
// so a listener may subscribe or cancel without deadlocking.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string][]entry
	all    []entry
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byName: make(map[string][]entry),
		logger: logger,
	}
}

// Subscribe registers l for events named name and returns a cancel function.
func (b *Bus) Subscribe(name string, l Listener) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byName[name] = append(b.byName[name], entry{id: id, listener: l})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byName[name] = without(b.byName[name], id)
		if len(b.byName[name]) == 0 {
			delete(b.byName, name)
		}
	}
}

// SubscribeAll registers l for every event. All-listeners run after named listeners.
func (b *Bus) SubscribeAll(l Listener) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, entry{id: id, listener: l})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, id)
	}
}

// Publish delivers e synchronously to every matching listener in registration order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	named := b.byName[e.Name()]
	targets := make([]entry, 0, len(named)+len(b.all))
	targets = append(targets, named...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, t := range targets {
		b.deliver(e, t.listener)
	}
}

// ListenerCount returns the number of listeners for name, excluding all-listeners.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byName[name])
}

func (b *Bus) deliver(e Event, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked",
				"event", e.Name(),
				"panic", fmt.Sprint(r))
		}
	}()
	l(e)
}

func without(entries []entry, id uint64) []entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// OnOpen registers a typed open listener.
func (b *Bus) OnOpen(fn func(Open)) func() {
	return b.Subscribe(NameOpen, func(e Event) {
		if ev, ok := e.(Open); ok {
			fn(ev)
		}
	})
}

// OnReconnect registers a typed reconnect listener.
func (b *Bus) OnReconnect(fn func(Reconnect)) func() {
	return b.Subscribe(NameReconnect, func(e Event) {
		if ev, ok := e.(Reconnect); ok {
			fn(ev)
		}
	})
}

// OnClose registers a typed close listener.
func (b *Bus) OnClose(fn func(Close)) func() {
	return b.Subscribe(NameClose, func(e Event) {
		if ev, ok := e.(Close); ok {
			fn(ev)
		}
	})
}

// OnError registers a typed error listener.
func (b *Bus) OnError(fn func(error)) func() {
	return b.Subscribe(NameError, func(e Event) {
		if ev, ok := e.(Error); ok {
			fn(ev.Err)
		}
	})
}

// OnBlock registers a typed block listener.
func (b *Bus) OnBlock(fn func(protocol.Block)) func() {
	return b.Subscribe(string(protocol.TopicBlock), func(e Event) {
		if ev, ok := e.(BlockEvent); ok {
			fn(ev.Block)
		}
	})
}

// OnFinalizedBlock registers a typed finalizedBlock listener.
func (b *Bus) OnFinalizedBlock(fn func(protocol.FinalizedBlock)) func() {
	return b.Subscribe(string(protocol.TopicFinalizedBlock), func(e Event) {
		if ev, ok := e.(FinalizedBlockEvent); ok {
			fn(ev.FinalizedBlock)
		}
	})
}

// OnTransaction registers a typed listener for one of the transaction-added topics.
func (b *Bus) OnTransaction(topic protocol.Topic, fn func(TransactionEvent)) func() {
	return b.Subscribe(string(topic), func(e Event) {
		if ev, ok := e.(TransactionEvent); ok {
			fn(ev)
		}
	})
}

// OnTransactionRemoved registers a typed listener for unconfirmedRemoved or partialRemoved.
func (b *Bus) OnTransactionRemoved(topic protocol.Topic, fn func(TransactionRemovedEvent)) func() {
	return b.Subscribe(string(topic), func(e Event) {
		if ev, ok := e.(TransactionRemovedEvent); ok {
			fn(ev)
		}
	})
}

// OnCosignature registers a typed cosignature listener.
func (b *Bus) OnCosignature(fn func(CosignatureEvent)) func() {
	return b.Subscribe(string(protocol.TopicCosignature), func(e Event) {
		if ev, ok := e.(CosignatureEvent); ok {
			fn(ev)
		}
	})
}

// OnStatus registers a typed status listener.
func (b *Bus) OnStatus(fn func(StatusEvent)) func() {
	return b.Subscribe(string(protocol.TopicStatus), func(e Event) {
		if ev, ok := e.(StatusEvent); ok {
			fn(ev)
		}
	})
}
