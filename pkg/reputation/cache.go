package reputation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores successfully resolved reputation scores. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, author feed.Address) (int, bool)
	Set(ctx context.Context, author feed.Address, score int)
}

// MemoryCache is a size-bounded in-process cache whose entries expire after a
// fixed TTL.
type MemoryCache struct {
	lru *expirable.LRU[feed.Address, int]
}

// NewMemoryCache returns a cache holding at most capacity entries for ttl.
// A capacity of zero means unlimited size; a ttl of zero means no expiry.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[feed.Address, int](capacity, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, author feed.Address) (int, bool) {
	return c.lru.Get(author)
}

func (c *MemoryCache) Set(_ context.Context, author feed.Address, score int) {
	c.lru.Add(author, score)
}

// RedisCache shares resolved scores between processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// ConnectRedis builds a client from either a redis:// URL or a bare host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return redis.NewClient(&redis.Options{Addr: redisURL}), nil
	}
	return redis.NewClient(opt), nil
}

// NewRedisCache stores entries under prefix with the given ttl.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "ledgerfeed:reputation:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(author feed.Address) string {
	return c.prefix + string(author)
}

func (c *RedisCache) Get(ctx context.Context, author feed.Address) (int, bool) {
	v, err := c.client.Get(ctx, c.key(author)).Result()
	if err != nil {
		return 0, false
	}
	score, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (c *RedisCache) Set(ctx context.Context, author feed.Address, score int) {
	// A failed write only costs a re-read on the next lookup.
	_ = c.client.Set(ctx, c.key(author), strconv.Itoa(score), c.ttl).Err()
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
