package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})), mr
}

func TestBlocker(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	b := NewBlocker(client, "fictotum:identity:")

	blocked, _, err := b.IsBlocked(ctx, "wikidata")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, b.BlockFor(ctx, "wikidata", 30*time.Second))
	assert.True(t, mr.Exists("fictotum:identity:wikidata:block"))

	blocked, ttl, err := b.IsBlocked(ctx, "wikidata")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(31 * time.Second)
	blocked, _, err = b.IsBlocked(ctx, "wikidata")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlockForIgnoresNonPositive(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	b := NewBlocker(client, "p:")

	require.NoError(t, b.BlockFor(ctx, "k", 0))
	assert.False(t, mr.Exists("p:k:block"))
}
