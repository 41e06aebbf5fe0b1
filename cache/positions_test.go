package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/game"
)

func newTestCache(t *testing.T) (*PositionCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return New(client, zerolog.Nop()), s
}

func TestSetAndGetAllPositions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 10, Z: 20, Direction: 90, State: game.StateRun})
	c.SetPosition(ctx, "room-1", "p2", game.CachedPosition{X: 30, Z: 40})
	c.SetPosition(ctx, "room-2", "p3", game.CachedPosition{X: 50, Z: 60})

	got := c.AllPositions(ctx, "room-1")
	require.Len(t, got, 2, "positions are room-scoped")
	assert.Equal(t, 10.0, got["p1"].X)
	assert.Equal(t, game.StateRun, got["p1"].State)
	assert.Equal(t, 40.0, got["p2"].Z)
}

func TestSetPositionAppliesTTL(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCache(t)
	c.WithTTL(time.Minute)

	c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 1})

	ttl := s.TTL("pos:room-1:p1")
	assert.Equal(t, time.Minute, ttl)

	s.FastForward(2 * time.Minute)
	assert.Empty(t, c.AllPositions(ctx, "room-1"), "entries self-expire")
}

func TestDeletePosition(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 1})
	c.SetPosition(ctx, "room-1", "p2", game.CachedPosition{X: 2})

	c.DeletePosition(ctx, "room-1", "p1")

	got := c.AllPositions(ctx, "room-1")
	require.Len(t, got, 1)
	assert.Contains(t, got, "p2")
}

func TestClearRoom(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 1})
	c.SetPosition(ctx, "room-1", "p2", game.CachedPosition{X: 2})
	c.SetPosition(ctx, "room-2", "p3", game.CachedPosition{X: 3})

	c.ClearRoom(ctx, "room-1")

	assert.Empty(t, c.AllPositions(ctx, "room-1"))
	assert.Len(t, c.AllPositions(ctx, "room-2"), 1, "other rooms untouched")
}

func TestCorruptEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCache(t)

	c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 1})
	require.NoError(t, s.Set("pos:room-1:bad", "{not json"))

	got := c.AllPositions(ctx, "room-1")
	require.Len(t, got, 1)
	assert.Contains(t, got, "p1")
}

func TestNilCacheIsDisabled(t *testing.T) {
	ctx := context.Background()
	var c *PositionCache

	assert.NotPanics(t, func() {
		c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{})
		c.DeletePosition(ctx, "room-1", "p1")
		c.ClearRoom(ctx, "room-1")
	})
	assert.Nil(t, c.AllPositions(ctx, "room-1"))
}

func TestRedisDownIsNonFatal(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCache(t)
	s.Close()

	assert.NotPanics(t, func() {
		c.SetPosition(ctx, "room-1", "p1", game.CachedPosition{X: 1})
	})
	assert.Empty(t, c.AllPositions(ctx, "room-1"))
}
