package evalcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"districtevo/internal/oracle"
)

const redisTimeout = 2 * time.Second

// RedisCache shares evaluations between runs and processes through Redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to url (redis://host:port/db) and checks the
// connection. Keys are namespaced with prefix and expire after ttl; zero
// keeps them forever.
func NewRedisCache(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "districtevo:eval:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (oracle.Vector, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v oracle.Vector
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("decode cached evaluation: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, values oracle.Vector) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	return c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
