package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFetchJSONPopulatesAndReuses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewJSONCache(client, time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Name: "status", Count: calls}, nil
	}

	var first, second snapshot
	require.NoError(t, c.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, c.FetchJSON(ctx, "k", &second, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, snapshot{Name: "status", Count: 1}, second)
	assert.Equal(t, first, second)

	mr.FastForward(2 * time.Minute)
	var third snapshot
	require.NoError(t, c.FetchJSON(ctx, "k", &third, loader))
	assert.Equal(t, 2, third.Count)
}

func TestFetchJSONLoaderErrorIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewJSONCache(client, time.Minute)

	boom := errors.New("boom")
	var dest snapshot
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestFetchJSONWithoutCacheCallsLoader(t *testing.T) {
	var c *JSONCache
	calls := 0
	var dest snapshot
	for i := 0; i < 2; i++ {
		require.NoError(t, c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) {
			calls++
			return snapshot{Name: "direct"}, nil
		}))
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, "direct", dest.Name)
	require.NoError(t, c.Invalidate(context.Background(), "k"))

	require.Error(t, NewJSONCache(nil, time.Minute).FetchJSON(context.Background(), "k", &dest, nil))
}

func TestInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewJSONCache(client, time.Minute)
	ctx := context.Background()

	var dest snapshot
	require.NoError(t, c.FetchJSON(ctx, "k", &dest, func(context.Context) (any, error) { return snapshot{Count: 1}, nil }))
	require.True(t, mr.Exists("k"))
	require.NoError(t, c.Invalidate(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}
