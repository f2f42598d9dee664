// Package cache is a Redis cache-aside layer for product reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const ProductTTL = 5 * time.Minute

const (
	listKey       = "products:all"
	genKey        = "products:gen"
	productPrefix = "product:"
)

// fillScript writes KEYS[2] only while the generation in KEYS[1] still
// matches ARGV[1]. A missing generation counts as 0.
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[1]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// Products caches the encoded product list and individual records. A nil
// client disables caching and every method becomes a no-op.
//
// Every invalidation increments a generation counter. A fill carries the
// generation read before the store load and is dropped if the counter has
// moved, so a read racing a write cannot cache the old record.
type Products struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New connects to redisURL. If the URL is empty, invalid or unreachable the
// returned cache is disabled.
func New(ctx context.Context, redisURL string, log zerolog.Logger) *Products {
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, caching disabled")
		return &Products{log: log}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, caching disabled")
		return &Products{log: log}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		rdb.Close()
		return &Products{log: log}
	}

	log.Info().Msg("redis: connected, caching enabled")
	return &Products{rdb: rdb, log: log}
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, log zerolog.Logger) *Products {
	return &Products{rdb: rdb, log: log}
}

func (c *Products) Enabled() bool { return c != nil && c.rdb != nil }

// Generation returns the current invalidation generation. Callers read it
// before loading from the store and pass it to SetList or SetProduct.
func (c *Products) Generation(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	gen, err := c.rdb.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetList returns the cached product list, or nil if it is not cached.
func (c *Products) GetList(ctx context.Context) ([]byte, error) {
	return c.get(ctx, listKey)
}

// SetList stores the list unless an invalidation happened after gen was read.
// It reports whether the entry was written.
func (c *Products) SetList(ctx context.Context, gen int64, data []byte) (bool, error) {
	return c.set(ctx, listKey, gen, data)
}

func (c *Products) GetProduct(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, productKey(id))
}

func (c *Products) SetProduct(ctx context.Context, id string, gen int64, data []byte) (bool, error) {
	return c.set(ctx, productKey(id), gen, data)
}

// Invalidate bumps the generation, then drops the list and, if id is
// non-empty, that product's entry. An empty id drops every cached product.
// The bump comes first: any fill still in flight carries an older generation
// and is rejected, and anything filled before it is deleted below.
func (c *Products) Invalidate(ctx context.Context, id string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.rdb.Incr(ctx, genKey).Err(); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}

	keys := []string{listKey}
	if id != "" {
		keys = append(keys, productKey(id))
		return c.rdb.Del(ctx, keys...).Err()
	}

	iter := c.rdb.Scan(ctx, 0, productPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan product keys: %w", err)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Products) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

func (c *Products) get(ctx context.Context, key string) ([]byte, error) {
	if !c.Enabled() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (c *Products) set(ctx context.Context, key string, gen int64, data []byte) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	n, err := fillScript.Run(ctx, c.rdb, []string{genKey, key},
		strconv.FormatInt(gen, 10), data, ProductTTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func productKey(id string) string {
	return productPrefix + id
}
