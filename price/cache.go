package price

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/symbolws/errors"
)

// CacheConfig configures the Redis latest-price cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Cache keeps the latest fetched price of each pair in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, cfg CacheConfig) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: redis addr", errors.ErrMissingConfig), "Cache", "NewCache", "validate config")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	c := newCache(client, cfg)
	if err := c.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return c, nil
}

func newCache(client *redis.Client, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "symbolws"
	}
	return &Cache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

func (c *Cache) key(symbol, currency string) string {
	return fmt.Sprintf("%s:latest:%s:%s", c.prefix, symbol, currency)
}

// SetLatest stores p as the latest price of its pair.
func (c *Cache) SetLatest(ctx context.Context, p Point) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.WrapInvalid(err, "Cache", "SetLatest", "marshal point")
	}
	if err := c.client.Set(ctx, c.key(p.Symbol, p.Currency), data, c.ttl).Err(); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "Cache", "SetLatest", "set key")
	}
	return nil
}

// Latest returns the latest price of a pair, or ErrNotFound.
func (c *Cache) Latest(ctx context.Context, symbol, currency string) (Point, error) {
	data, err := c.client.Get(ctx, c.key(symbol, currency)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Point{}, fmt.Errorf("latest %s/%s: %w", symbol, currency, errors.ErrNotFound)
		}
		return Point{}, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "Cache", "Latest", "get key")
	}

	var p Point
	if err := json.Unmarshal(data, &p); err != nil {
		return Point{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Cache", "Latest", "decode point")
	}
	return p, nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "Cache", "Ping", "ping redis")
	}
	return nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
