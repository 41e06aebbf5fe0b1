// Package cache synchronizes player positions across server processes
// through a TTL'd Redis keyspace. It is strictly best-effort: every failure
// is logged and swallowed, and a missing cache degrades to single-process
// operation. Last write wins; there is no conflict detection.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/game"
)

// DefaultTTL keeps entries alive long enough for a live match while letting
// a crashed process's stale writes self-expire.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "pos:"

// PositionCache stores per-(room,player) positions in Redis. A nil
// *PositionCache is valid and disables cross-instance sync entirely.
type PositionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func New(client *redis.Client, log zerolog.Logger) *PositionCache {
	return &PositionCache{client: client, ttl: DefaultTTL, log: log}
}

// WithTTL overrides the entry lifetime; used by tests.
func (c *PositionCache) WithTTL(ttl time.Duration) *PositionCache {
	c.ttl = ttl
	return c
}

func positionKey(roomID, playerID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, roomID, playerID)
}

// SetPosition writes one player's resolved position with the cache TTL.
func (c *PositionCache) SetPosition(ctx context.Context, roomID, playerID string, pos game.CachedPosition) {
	if c == nil {
		return
	}
	data, err := json.Marshal(pos)
	if err != nil {
		c.log.Error().Err(err).Str("player_id", playerID).Msg("cache: marshal position")
		return
	}
	if err := c.client.Set(ctx, positionKey(roomID, playerID), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Str("player_id", playerID).
			Msg("cache: set position failed")
	}
}

// AllPositions returns every cached position for a room, keyed by player
// id. Failures and unparsable entries yield an empty or partial map, never
// an error.
func (c *PositionCache) AllPositions(ctx context.Context, roomID string) map[string]game.CachedPosition {
	if c == nil {
		return nil
	}
	prefix := keyPrefix + roomID + ":"
	keys, err := c.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("cache: list positions failed")
		return nil
	}
	if len(keys) == 0 {
		return nil
	}

	out := make(map[string]game.CachedPosition, len(keys))
	for _, key := range keys {
		data, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			if err != redis.Nil {
				c.log.Warn().Err(err).Str("key", key).Msg("cache: get position failed")
			}
			continue
		}
		var pos game.CachedPosition
		if err := json.Unmarshal(data, &pos); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache: corrupt position entry")
			continue
		}
		out[strings.TrimPrefix(key, prefix)] = pos
	}
	return out
}

// DeletePosition drops one player's entry, typically on leave.
func (c *PositionCache) DeletePosition(ctx context.Context, roomID, playerID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, positionKey(roomID, playerID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Str("player_id", playerID).
			Msg("cache: delete position failed")
	}
}

// ClearRoom drops every entry of a room, used at kickoff and restart so a
// fresh match never reconciles stale pre-reset positions.
func (c *PositionCache) ClearRoom(ctx context.Context, roomID string) {
	if c == nil {
		return
	}
	keys, err := c.client.Keys(ctx, keyPrefix+roomID+":*").Result()
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("cache: clear room failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("cache: clear room failed")
	}
}
