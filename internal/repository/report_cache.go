package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
)

// RedisReportCache stores serialized analysis reports keyed by the workflow
// instance and revision they were computed from. A revision never changes
// content, so entries only expire to bound memory.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportCache creates a cache with the given entry TTL.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisReportCache{client: client, ttl: ttl}
}

func reportKey(instance string, revision uint64) string {
	return fmt.Sprintf("p2p:report:%s:%d", instance, revision)
}

// Get returns the cached report, or ok=false on a miss.
func (c *RedisReportCache) Get(ctx context.Context, instance string, revision uint64) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, reportKey(instance, revision)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "failed to read cached report")
	}
	return data, true, nil
}

// Set stores a report.
func (c *RedisReportCache) Set(ctx context.Context, instance string, revision uint64, data []byte) error {
	if err := c.client.Set(ctx, reportKey(instance, revision), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to cache report")
	}
	return nil
}
