package evalcache

import (
	"context"
	"fmt"
	"time"
)

// New builds a cache by kind: "" or "none" disables caching, "memory" and
// "redis" select the backend.
func New(ctx context.Context, kind, redisURL string, capacity int, ttl time.Duration) (Cache, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(capacity), nil
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis cache requires a url")
		}
		c, err := NewRedisCache(ctx, redisURL, "", ttl)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache kind: %s", kind)
	}
}
