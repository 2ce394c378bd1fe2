package namecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goverflow/goverflow/pkg/namecache"
)

func newCache(t *testing.T, ttl time.Duration) (*namecache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := namecache.New(mr.Addr(), "", ttl)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCache_PutGet(t *testing.T) {
	c, _ := newCache(t, time.Minute)
	ctx := context.Background()

	name, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "a miss is not an error")
	assert.Empty(t, name)

	require.NoError(t, c.Put(ctx, "u1", "alice"))

	name, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
}

func TestCache_TTL(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u1", "alice"))

	mr.FastForward(time.Minute + time.Second)

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "entries expire after the TTL")
}

func TestCache_TTLNeverBelowASecond(t *testing.T) {
	c, mr := newCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u1", "alice"), "a zero TTL must not turn into SET EX 0")

	name, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, time.Second, mr.TTL("name:u1"))
}

func TestCache_Overwrite(t *testing.T) {
	c, _ := newCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u1", "alice"))
	require.NoError(t, c.Put(ctx, "u1", "alice-renamed"))

	name, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice-renamed", name)
}
