// Package subscription keeps the caller's record of topic subscriptions.
//
// The registry is bookkeeping only. The client never replays it after a
// reconnect; callers resubscribe from their open listener, typically by
// iterating List.
package subscription

import (
	"sort"
	"sync"

	"github.com/c360/symbolws/protocol"
)

// Subscription is one topic, optionally filtered by address.
type Subscription struct {
	Topic   protocol.Topic `json:"topic"`
	Address string         `json:"address,omitempty"`
}

// Channel returns the wire channel name.
func (s Subscription) Channel() string {
	return s.Topic.Channel(s.Address)
}

// Registry is a concurrency-safe set of subscriptions.
type Registry struct {
	mu   sync.RWMutex
	subs map[Subscription]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[Subscription]struct{})}
}

// Add records s and reports whether it was new.
func (r *Registry) Add(s Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; ok {
		return false
	}
	r.subs[s] = struct{}{}
	return true
}

// Remove forgets s and reports whether it was present.
func (r *Registry) Remove(s Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; !ok {
		return false
	}
	delete(r.subs, s)
	return true
}

// Contains reports whether s is recorded.
func (r *Registry) Contains(s Subscription) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[s]
	return ok
}

// Len returns the number of recorded subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// List returns the subscriptions ordered by topic declaration order, then address.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.subs))
	for s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Topic.Index(), out[j].Topic.Index()
		if ti != tj {
			return ti < tj
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[Subscription]struct{})
}
