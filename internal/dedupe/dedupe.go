// Package dedupe remembers which transport messages were already turned into
// entries, so a redelivered message is not stored twice.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix  = "diary:msg:"
	DefaultTTL = 48 * time.Hour
)

func key(userID uint64, originID int64) string {
	return fmt.Sprintf("%s%d:%d", KeyPrefix, userID, originID)
}

// Memory keeps seen message ids in process memory. Good for a single
// instance; the set is lost on restart.
type Memory struct {
	c *cache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: cache.New(ttl, ttl/2)}
}

// Seen marks the message and reports whether it had been marked before.
func (m *Memory) Seen(_ context.Context, userID uint64, originID int64) (bool, error) {
	if err := m.c.Add(key(userID, originID), struct{}{}, cache.DefaultExpiration); err != nil {
		// Add fails only when the key is present
		return true, nil
	}
	return false, nil
}

// Forget drops the mark, used when storing the entry failed.
func (m *Memory) Forget(_ context.Context, userID uint64, originID int64) error {
	m.c.Delete(key(userID, originID))
	return nil
}

// Redis keeps seen message ids in Redis so they survive restarts.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb, ttl), nil
}

func (r *Redis) Seen(ctx context.Context, userID uint64, originID int64) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key(userID, originID), 1, r.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (r *Redis) Forget(ctx context.Context, userID uint64, originID int64) error {
	return r.rdb.Del(ctx, key(userID, originID)).Err()
}

func (r *Redis) Close() error { return r.rdb.Close() }
