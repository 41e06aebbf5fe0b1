package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/events"
	"github.com/pitchside/pitchside/game"
	"github.com/pitchside/pitchside/persist"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []persist.MatchResult
	saveErr error
	nextID  int64
}

func (f *fakeStore) SaveMatch(_ context.Context, result persist.MatchResult) (persist.SaveOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return persist.SaveOutcome{}, f.saveErr
	}
	f.saved = append(f.saved, result)
	f.nextID++
	return persist.SaveOutcome{MatchID: f.nextID, WinnerTeam: persist.Winner(result.Score)}, nil
}

func (f *fakeStore) PlayerStats(context.Context, string) (persist.PlayerStats, error) {
	return persist.PlayerStats{}, persist.ErrPlayerNotFound
}

func (f *fakeStore) Rankings(context.Context, int) ([]persist.PlayerStats, error) {
	return nil, nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type countingCache struct {
	mu       sync.Mutex
	allCalls map[string]int
}

func (c *countingCache) SetPosition(context.Context, string, string, game.CachedPosition) {}

func (c *countingCache) AllPositions(_ context.Context, roomID string) map[string]game.CachedPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allCalls == nil {
		c.allCalls = make(map[string]int)
	}
	c.allCalls[roomID]++
	return nil
}

func (c *countingCache) DeletePosition(context.Context, string, string) {}

func (c *countingCache) ClearRoom(context.Context, string) {}

func (c *countingCache) allFor(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allCalls[roomID]
}

type recorder struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (rec *recorder) handle(ev events.Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.kinds = append(rec.kinds, ev.Kind)
}

func (rec *recorder) has(kind events.Kind) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, k := range rec.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, store persist.MatchStore) (*Manager, *recorder) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	m := NewManager(bus, store, nil, zerolog.Nop())
	m.SeedRNG(1)
	return m, rec
}

func fillRoom(t *testing.T, m *Manager) (string, []string) {
	t.Helper()
	var roomID string
	ids := make([]string, 0, game.DefaultRoomSize)
	for i := 0; i < game.DefaultRoomSize; i++ {
		res := m.JoinRandomMatch("player")
		if roomID == "" {
			roomID = res.RoomID
		}
		require.Equal(t, roomID, res.RoomID)
		ids = append(ids, res.PlayerID)
		if i == game.DefaultRoomSize-1 {
			require.True(t, res.Matched)
		} else {
			require.False(t, res.Matched)
		}
	}
	return roomID, ids
}

func TestJoinRandomMatchReusesWaitingRoom(t *testing.T) {
	m, rec := newTestManager(t, nil)

	a := m.JoinRandomMatch("ada")
	b := m.JoinRandomMatch("bob")

	assert.Equal(t, a.RoomID, b.RoomID)
	assert.NotEqual(t, a.PlayerID, b.PlayerID)
	assert.Equal(t, 2, b.Snapshot.PlayerCount)
	assert.Equal(t, game.RoomWaiting, b.Snapshot.State)
	assert.True(t, rec.has(events.PlayerJoined))
}

func TestJoinRandomMatchFillBalancesTeams(t *testing.T) {
	m, rec := newTestManager(t, nil)

	roomID, _ := fillRoom(t, m)

	room := m.Room(roomID)
	require.NotNil(t, room)
	assert.Equal(t, game.RoomMatching, room.State)
	assert.Len(t, room.PlayersByTeam(game.TeamAlpha), 3)
	assert.Len(t, room.PlayersByTeam(game.TeamBravo), 3)
	assert.True(t, rec.has(events.MatchingComplete))

	// A full waiting room must not receive the next joiner.
	next := m.JoinRandomMatch("late")
	assert.NotEqual(t, roomID, next.RoomID)
}

func TestPrivateRoomLifecycle(t *testing.T) {
	m, _ := newTestManager(t, nil)

	created := m.CreatePrivateRoom("host", 2)
	require.Len(t, created.RoomCode, 6)
	require.NotNil(t, m.Room(created.RoomID))
	assert.True(t, m.Room(created.RoomID).Private)

	// A private room never absorbs random matchmaking traffic.
	random := m.JoinRandomMatch("stray")
	assert.NotEqual(t, created.RoomID, random.RoomID)

	joined, err := m.JoinPrivateRoom(created.RoomID, "guest")
	require.NoError(t, err)
	assert.Equal(t, created.RoomID, joined.RoomID)
	assert.True(t, joined.Matched)

	_, err = m.JoinPrivateRoom(created.RoomID, "third")
	assert.ErrorIs(t, err, game.ErrRoomFull)

	_, err = m.JoinPrivateRoom("room_missing", "ghost")
	assert.True(t, eris.Is(err, ErrRoomNotFound))
}

func TestJoinPrivateRoomRejectsStartedGame(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	created := m.CreatePrivateRoom("host", 1)
	require.NoError(t, m.StartGame(ctx, created.RoomID))

	_, err := m.JoinPrivateRoom(created.RoomID, "late")
	assert.True(t, eris.Is(err, ErrAlreadyStarted))
}

func TestRemovePlayerGarbageCollectsRoom(t *testing.T) {
	m, rec := newTestManager(t, nil)
	ctx := context.Background()

	res := m.JoinRandomMatch("solo")
	roomID, removed := m.RemovePlayer(ctx, res.PlayerID)

	assert.True(t, removed)
	assert.Equal(t, res.RoomID, roomID)
	assert.Nil(t, m.Room(roomID))
	assert.True(t, rec.has(events.PlayerLeft))

	// The waiting room pointer must not dangle on a fresh join.
	again := m.JoinRandomMatch("next")
	assert.NotEmpty(t, again.RoomID)

	_, removed = m.RemovePlayer(ctx, "p_unknown")
	assert.False(t, removed)
}

func TestStartGameGuardsState(t *testing.T) {
	m, rec := newTestManager(t, nil)
	ctx := context.Background()

	res := m.JoinRandomMatch("early")
	err := m.StartGame(ctx, res.RoomID)
	assert.True(t, eris.Is(err, ErrWrongState))
	m.RemovePlayer(ctx, res.PlayerID)

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))
	assert.Equal(t, game.RoomPlaying, m.Room(roomID).State)
	assert.True(t, rec.has(events.GameStarted))

	err = m.StartGame(ctx, "room_missing")
	assert.True(t, eris.Is(err, ErrRoomNotFound))
}

func TestEndGameSavesAndUnwinds(t *testing.T) {
	store := &fakeStore{}
	m, rec := newTestManager(t, store)
	ctx := context.Background()

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))
	m.Room(roomID).Score = game.Score{Alpha: 2, Bravo: 1}

	require.NoError(t, m.EndGame(ctx, roomID))

	assert.Equal(t, game.RoomFinished, m.Room(roomID).State)
	require.Equal(t, 1, store.savedCount())
	assert.Len(t, store.saved[0].Players, game.DefaultRoomSize)
	assert.Equal(t, string(game.TeamAlpha), persist.Winner(store.saved[0].Score))
	assert.True(t, rec.has(events.GameEnded))

	// Ending twice is a state error, not a double save.
	err := m.EndGame(ctx, roomID)
	assert.True(t, eris.Is(err, ErrWrongState))
	assert.Equal(t, 1, store.savedCount())
}

func TestEndGameSaveFailureKeepsRoomFinished(t *testing.T) {
	store := &fakeStore{saveErr: eris.New("database down")}
	m, rec := newTestManager(t, store)
	ctx := context.Background()

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))

	err := m.EndGame(ctx, roomID)
	require.Error(t, err)
	assert.Equal(t, game.RoomFinished, m.Room(roomID).State)
	assert.True(t, rec.has(events.MatchSaveFailed))
	assert.False(t, rec.has(events.GameEnded))
}

func TestRestartRewindsMatch(t *testing.T) {
	m, rec := newTestManager(t, nil)
	ctx := context.Background()

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))

	room := m.Room(roomID)
	room.Score = game.Score{Alpha: 3}
	room.TimeLeft = 12

	require.NoError(t, m.Restart(ctx, roomID))
	assert.Equal(t, game.RoomPlaying, room.State)
	assert.Equal(t, game.Score{}, room.Score)
	assert.Equal(t, game.MatchDuration, room.TimeLeft)
	assert.True(t, rec.has(events.GameRestarted))
}

func TestRestartAfterFinishReenters(t *testing.T) {
	store := &fakeStore{}
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))
	require.NoError(t, m.EndGame(ctx, roomID))

	require.NoError(t, m.Restart(ctx, roomID))
	assert.Equal(t, game.RoomPlaying, m.Room(roomID).State)
}

func TestApplyUpdateResolvesAndClamps(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	res := m.JoinRandomMatch("mover")
	x, z := 9999.0, -50.0
	ok := m.ApplyUpdate(ctx, res.PlayerID, game.PositionUpdate{X: &x, Z: &z})
	require.True(t, ok)

	player := m.Room(res.RoomID).Player(res.PlayerID)
	assert.Equal(t, float64(game.FieldWidth), player.X)
	assert.Equal(t, 0.0, player.Z)

	assert.False(t, m.ApplyUpdate(ctx, "p_ghost", game.PositionUpdate{X: &x}))
}

func TestApplyUpdateIgnoredWhileStunned(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	res := m.JoinRandomMatch("victim")
	player := m.Room(res.RoomID).Player(res.PlayerID)
	player.X, player.Z = 100, 100
	player.Stun(time.Now())

	x, z := 300.0, 300.0
	ok := m.ApplyUpdate(ctx, res.PlayerID, game.PositionUpdate{X: &x, Z: &z})

	assert.False(t, ok, "movement input must be dropped while stunned")
	assert.Equal(t, 100.0, player.X)
	assert.Equal(t, 100.0, player.Z)

	// Once the stun clears, the same patch lands.
	player.ClearStun()
	require.True(t, m.ApplyUpdate(ctx, res.PlayerID, game.PositionUpdate{X: &x, Z: &z}))
	assert.Equal(t, 300.0, player.X)
}

func TestResolveActionRoutesToRoom(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	roomID, ids := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))

	room := m.Room(roomID)
	kicker := room.Player(ids[0])
	kicker.X, kicker.Z = room.Ball.X, room.Ball.Z

	m.ResolveAction(ids[0], game.ActionKick, 0)
	assert.True(t, room.Ball.Moving())

	// Unknown players fall through silently.
	m.ResolveAction("p_ghost", game.ActionKick, 0)
}

func TestTickRoomFetchesCacheOnlyWhenPlaying(t *testing.T) {
	positions := &countingCache{}
	bus := events.NewBus(zerolog.Nop())
	m := NewManager(bus, nil, positions, zerolog.Nop())
	m.SeedRNG(1)
	ctx := context.Background()

	res := m.JoinRandomMatch("lobbyist")
	m.TickRoom(ctx, res.RoomID, time.Now())
	m.TickRoom(ctx, "room_missing", time.Now())
	assert.Zero(t, positions.allFor(res.RoomID), "waiting rooms must not scan the cache")
	assert.Zero(t, positions.allFor("room_missing"))

	for i := 0; i < game.DefaultRoomSize-1; i++ {
		m.JoinRandomMatch("player")
	}
	require.NoError(t, m.StartGame(ctx, res.RoomID))
	m.TickRoom(ctx, res.RoomID, time.Now())
	assert.Equal(t, 1, positions.allFor(res.RoomID), "playing rooms reconcile from the cache")
}

func TestTickRoomExpiryPersistsMatch(t *testing.T) {
	store := &fakeStore{}
	m, rec := newTestManager(t, store)
	ctx := context.Background()

	roomID, _ := fillRoom(t, m)
	require.NoError(t, m.StartGame(ctx, roomID))
	m.Room(roomID).TimeLeft = 0.01

	now := time.Now()
	m.TickRoom(ctx, roomID, now)
	m.TickRoom(ctx, roomID, now.Add(time.Second))

	assert.Equal(t, game.RoomFinished, m.Room(roomID).State)
	assert.Equal(t, 1, store.savedCount())
	assert.True(t, rec.has(events.GameTicked))
	assert.True(t, rec.has(events.GameEnded))

	// Finished rooms are no longer ticked.
	m.TickRoom(ctx, roomID, now.Add(2*time.Second))
	assert.Equal(t, 1, store.savedCount())
}
