package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"accounts/internal/dto"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "accounts:account:"

// RedisAccountCache keeps account views in Redis for ttl. Redis failures
// are logged and treated as misses.
type RedisAccountCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisAccountCache(client redis.UniversalClient, ttl time.Duration) *RedisAccountCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisAccountCache{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisAccountCache) Get(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, bool) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("account cache get", "error", err, "account_id", id)
		}
		return nil, false
	}
	var out dto.AccountResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Warn("account cache decode", "error", err, "account_id", id)
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &out, true
}

func (c *RedisAccountCache) Set(ctx context.Context, acct *dto.AccountResponse) {
	raw, err := json.Marshal(acct)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+acct.ID, raw, c.ttl).Err(); err != nil {
		slog.Warn("account cache set", "error", err, "account_id", acct.ID)
	}
}

func (c *RedisAccountCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		slog.Warn("account cache invalidate", "error", err, "account_id", id)
	}
}

func key(id uuid.UUID) string { return keyPrefix + id.String() }

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*dto.AccountResponse, bool) { return nil, false }
func (Noop) Set(context.Context, *dto.AccountResponse)                   {}
func (Noop) Invalidate(context.Context, uuid.UUID)                       {}
