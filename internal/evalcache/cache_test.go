package evalcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"districtevo/internal/oracle"
)

func TestMemoryCacheRoundTripAndEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "a", oracle.Vector{1, 2}))
	require.NoError(t, c.Put(ctx, "b", oracle.Vector{3, 4}))
	require.NoError(t, c.Put(ctx, "c", oracle.Vector{5, 6}))
	require.Equal(t, 2, c.Len())

	_, ok, err = c.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok, "oldest entry must be evicted")

	v, ok, err := c.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, oracle.Vector{5, 6}, v)

	v[0] = 99
	again, _, _ := c.Get(ctx, "c")
	require.Equal(t, 5.0, again[0], "cached values must be copied")

	require.NoError(t, c.Close())
	_, _, err = c.Get(ctx, "c")
	require.ErrorIs(t, err, ErrCacheClosed)
}

func TestKeyIncludesStrategyAndScope(t *testing.T) {
	require.NotEqual(t, Key("s1", oracle.MeanAnnCO2, "abc"), Key("s1", oracle.RefAnnCO2, "abc"))
	require.NotEqual(t, Key("s1", oracle.MeanAnnCO2, "abc"), Key("s2", oracle.MeanAnnCO2, "abc"))
}

func TestScopeDigestsParts(t *testing.T) {
	type settings struct {
		Runs int
		Seed int64
	}
	a, err := Scope("street", settings{Runs: 20, Seed: 1})
	require.NoError(t, err)
	again, err := Scope("street", settings{Runs: 20, Seed: 1})
	require.NoError(t, err)
	require.Equal(t, a, again)
	require.Len(t, a, 16)

	for _, parts := range [][]any{
		{"street", settings{Runs: 20, Seed: 2}},
		{"street", settings{Runs: 8, Seed: 1}},
		{"avenue", settings{Runs: 20, Seed: 1}},
	} {
		other, err := Scope(parts...)
		require.NoError(t, err)
		require.NotEqual(t, a, other, "%v", parts)
	}

	_, err = Scope(func() {})
	require.Error(t, err)
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, "", "", 0, 0)
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = New(ctx, "memory", "", 10, 0)
	require.NoError(t, err)
	require.IsType(t, &MemoryCache{}, c)

	_, err = New(ctx, "redis", "", 0, 0)
	require.Error(t, err)

	_, err = New(ctx, "etcd", "", 0, 0)
	require.Error(t, err)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	url := os.Getenv("DISTRICTEVO_REDIS_URL")
	if url == "" {
		t.Skip("DISTRICTEVO_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, "districtevo:test:", time.Minute)
	require.NoError(t, err)
	defer c.Close()

	key := Key("test", oracle.MeanAnnCO2, time.Now().Format(time.RFC3339Nano))
	require.NoError(t, c.Put(ctx, key, oracle.Vector{1.5, 2.5}))
	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, oracle.Vector{1.5, 2.5}, v)
}
