package evalcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"districtevo/internal/oracle"
)

var ErrCacheClosed = errors.New("evaluation cache is closed")

// Cache stores objective vectors by candidate fingerprint and strategy.
type Cache interface {
	Get(ctx context.Context, key string) (oracle.Vector, bool, error)
	Put(ctx context.Context, key string, values oracle.Vector) error
	Close() error
}

// Key combines the run scope, the strategy and the candidate fingerprint.
// Entries from runs with different scopes never collide.
func Key(scope string, strategy oracle.Strategy, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", scope, strategy, fingerprint)
}

// Scope digests everything an objective vector depends on besides the
// candidate itself: reference data, oracle settings, seeds.
func Scope(parts ...any) (string, error) {
	h := sha1.New()
	enc := json.NewEncoder(h)
	for i, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("encoding cache scope part %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// MemoryCache is an in-process cache with optional FIFO eviction.
type MemoryCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]oracle.Vector
	order    []string
	closed   bool
}

// NewMemoryCache returns a cache holding at most capacity entries; zero
// means unbounded.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]oracle.Vector),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (oracle.Vector, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false, ErrCacheClosed
	}
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append(oracle.Vector(nil), v...), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, values oracle.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = append(oracle.Vector(nil), values...)
	for c.capacity > 0 && len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = nil
	c.order = nil
	return nil
}
