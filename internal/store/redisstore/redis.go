package redisstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

const notFoundPrefix = "enrich:notfound:"

// NotFoundCache remembers profile URLs the enrichment provider had no person
// for, so repeated batches skip them until the TTL expires.
type NotFoundCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewNotFoundCache(rdb redis.Cmdable, ttl time.Duration) *NotFoundCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &NotFoundCache{rdb: rdb, ttl: ttl}
}

func (c *NotFoundCache) IsNotFound(ctx context.Context, profileURL string) (bool, error) {
	_, err := c.rdb.Get(ctx, notFoundKey(profileURL)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *NotFoundCache) MarkNotFound(ctx context.Context, profileURL string) error {
	return c.rdb.Set(ctx, notFoundKey(profileURL), time.Now().UTC().Format(time.RFC3339), c.ttl).Err()
}

func notFoundKey(profileURL string) string {
	sum := sha1.Sum([]byte(profileURL))
	return notFoundPrefix + hex.EncodeToString(sum[:])
}
