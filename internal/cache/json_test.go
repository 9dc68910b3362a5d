package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-toko/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestJSONRoundTripAndTTL(t *testing.T) {
	mr, client := newClient(t)
	c := cache.NewJSON(client, "catalog:", time.Minute)
	ctx := context.Background()

	key := c.Key("product", "p1")
	require.Equal(t, "catalog:product:p1", key)

	var out payload
	ok, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, key, payload{Name: "Kopi", Price: "12.50"}))
	ok, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Kopi", out.Name)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONCorruptPayloadIsMiss(t *testing.T) {
	mr, client := newClient(t)
	c := cache.NewJSON(client, "loyalty", time.Minute)
	require.NoError(t, mr.Set("loyalty:settings", "{not json"))

	var out payload
	ok, err := c.Get(context.Background(), "loyalty:settings", &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("loyalty:settings"))
}

func TestJSONDisabled(t *testing.T) {
	_, client := newClient(t)
	c := cache.NewJSON(client, "x", 0)
	require.NoError(t, c.Set(context.Background(), "x:k", payload{Name: "a"}))
	var out payload
	ok, err := c.Get(context.Background(), "x:k", &out)
	require.NoError(t, err)
	require.False(t, ok)

	var nilCache *cache.JSON
	ok, err = nilCache.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, ok)
}
