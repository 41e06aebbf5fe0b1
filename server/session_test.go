package server

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/events"
	"github.com/pitchside/pitchside/match"
)

// newBoundSession builds a session already bound to a freshly joined
// player, without a transport. Handlers that only mutate game state never
// touch the connection, so these tests stay deterministic.
func newBoundSession(t *testing.T) (*session, *match.Manager, match.JoinResult) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	mgr := match.NewManager(bus, nil, nil, zerolog.Nop())
	res := mgr.JoinRandomMatch("ada")

	s := &session{mgr: mgr, log: zerolog.Nop()}
	s.playerID = res.PlayerID
	s.roomID = res.RoomID
	return s, mgr, res
}

func (s *session) pushUpdate(t *testing.T, x float64) {
	t.Helper()
	data, err := encodeMessage(msgUpdate, updatePayload{X: &x})
	require.NoError(t, err)
	env, err := decodeEnvelope(data)
	require.NoError(t, err)
	s.handleUpdate(context.Background(), env)
}

func TestUpdateRateLimitDropsInsideWindow(t *testing.T) {
	s, mgr, res := newBoundSession(t)

	s.pushUpdate(t, 100)
	s.pushUpdate(t, 200)

	player := mgr.Room(res.RoomID).Player(res.PlayerID)
	assert.Equal(t, 100.0, player.X, "second update inside the window must be dropped")

	// Outside the window the next update lands.
	s.lastUpdateAt = time.Now().Add(-2 * updateInterval)
	s.pushUpdate(t, 200)
	assert.Equal(t, 200.0, player.X)
}

func TestMalformedUpdateDoesNotConsumeRateWindow(t *testing.T) {
	s, mgr, res := newBoundSession(t)

	bad := Envelope{Type: msgUpdate, Payload: []byte(`{"x":"sideways"}`)}
	s.handleUpdate(context.Background(), bad)

	// The immediately following valid update must still land.
	s.pushUpdate(t, 100)
	player := mgr.Room(res.RoomID).Player(res.PlayerID)
	assert.Equal(t, 100.0, player.X)
}

func TestUpdateIgnoredBeforeJoin(t *testing.T) {
	s := &session{log: zerolog.Nop()}
	x := 100.0
	data, err := encodeMessage(msgUpdate, updatePayload{X: &x})
	require.NoError(t, err)
	env, err := decodeEnvelope(data)
	require.NoError(t, err)

	// Must not panic with no manager bound; unauthenticated updates fall
	// through before any lookup.
	s.handleUpdate(context.Background(), env)
}
