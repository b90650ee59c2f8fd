package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/symbolws/errors"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]ttlEntry[V]
	stats *Statistics
	now   func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a cache whose entries expire ttl after they were set.
// Expired entries are removed every cleanupInterval until ctx is done or
// Close is called.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, opts ...Option) (Cache[V], error) {
	if ttl <= 0 || cleanupInterval <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: ttl and cleanup interval must be positive", errors.ErrInvalidConfig),
			"cache", "NewTTL", "validate config")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &ttlCache[V]{
		ttl:      ttl,
		items:    make(map[string]ttlEntry[V]),
		stats:    NewStatistics(),
		now:      o.now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.cleanup(ctx, cleanupInterval)
	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		c.stats.Hit()
		return entry.value, true
	}

	if ok {
		c.mu.Lock()
		if current, still := c.items[key]; still && !c.now().Before(current.expiresAt) {
			delete(c.items, key)
			c.stats.Eviction()
		}
		c.mu.Unlock()
	}
	c.stats.Miss()
	var zero V
	return zero, false
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	c.stats.Set()
	return !exists, nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()
	return exists, nil
}

func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]ttlEntry[V])
	c.mu.Unlock()
	return nil
}

func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cache cleanup to stop")
	}
}

func (c *ttlCache[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			delete(c.items, key)
			c.stats.Eviction()
		}
	}
}
