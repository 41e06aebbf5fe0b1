// Package match owns room lifecycle: matchmaking, the tick scheduler, and
// the end-of-match persistence hand-off. All room mutation in the process
// funnels through the Manager's mutex, so a tick sweep and two actions for
// the same room can never interleave mid-resolution.
package match

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/events"
	"github.com/pitchside/pitchside/game"
	"github.com/pitchside/pitchside/persist"
)

var (
	ErrRoomNotFound   = eris.New("room not found")
	ErrAlreadyStarted = eris.New("game already started")
	ErrWrongState     = eris.New("room is in the wrong state")
)

// registrar is the scheduler surface the manager drives: rooms are
// registered when created and unregistered when ended or emptied. The
// scheduler has no lifecycle authority of its own.
type registrar interface {
	Register(roomID string)
	Unregister(roomID string)
}

// positionStore is the cross-instance cache surface the manager drives.
// *cache.PositionCache implements it; nil disables synchronization.
type positionStore interface {
	SetPosition(ctx context.Context, roomID, playerID string, pos game.CachedPosition)
	AllPositions(ctx context.Context, roomID string) map[string]game.CachedPosition
	DeletePosition(ctx context.Context, roomID, playerID string)
	ClearRoom(ctx context.Context, roomID string)
}

// Event payloads published by the manager.
type (
	// JoinedPayload rides PlayerJoined and PlayerLeft.
	JoinedPayload struct {
		PlayerID string
		Name     string
	}
	// UpdatedPayload rides PlayerUpdated.
	UpdatedPayload struct {
		PlayerID string
	}
	// TickPayload rides GameTicked.
	TickPayload struct {
		Snapshot game.RoomSnapshot
	}
	// StartedPayload rides GameStarted and GameRestarted.
	StartedPayload struct {
		Snapshot game.RoomSnapshot
	}
	// EndedPayload rides GameEnded.
	EndedPayload struct {
		MatchID  int64
		Winner   string
		Snapshot game.RoomSnapshot
	}
	// SaveFailedPayload rides MatchSaveFailed.
	SaveFailedPayload struct {
		Message string
	}
)

// JoinResult is everything the connection layer needs to acknowledge a
// join: the fresh server-generated player id, where the player landed, and
// whether this join filled the room.
type JoinResult struct {
	PlayerID string
	RoomID   string
	RoomCode string
	Snapshot game.RoomSnapshot
	Matched  bool
}

// Manager creates and indexes rooms, assigns players, and garbage-collects
// rooms by player presence. It is explicitly constructed and injected;
// there is exactly one per process entry point, never a package global.
type Manager struct {
	mu           sync.Mutex
	rooms        map[string]*game.Room
	waitingRoom  *game.Room
	playerToRoom map[string]string

	bus       *events.Bus
	store     persist.MatchStore
	positions positionStore
	scheduler registrar
	log       zerolog.Logger
	rng       *rand.Rand
}

func NewManager(bus *events.Bus, store persist.MatchStore, positions positionStore, log zerolog.Logger) *Manager {
	return &Manager{
		rooms:        make(map[string]*game.Room),
		playerToRoom: make(map[string]string),
		bus:          bus,
		store:        store,
		positions:    positions,
		log:          log,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AttachScheduler wires the tick scheduler once, during process setup.
func (m *Manager) AttachScheduler(s registrar) { m.scheduler = s }

// SeedRNG pins team shuffling for tests.
func (m *Manager) SeedRNG(seed int64) { m.rng = rand.New(rand.NewSource(seed)) }

func newRoomID() string {
	return "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func newPlayerID() string {
	return "p_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// roomCode is the short join code handed to private room creators.
func roomCode(roomID string) string {
	return strings.ToUpper(roomID[len(roomID)-6:])
}

// JoinRandomMatch places a player into the shared waiting room, creating a
// fresh public room when the current one is absent or full.
func (m *Manager) JoinRandomMatch(name string) JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.waitingRoom
	if room == nil || room.Full() {
		room = game.NewRoom(newRoomID(), game.DefaultRoomSize, false, m.bus)
		m.rooms[room.ID] = room
		m.waitingRoom = room
		m.register(room.ID)
		m.log.Info().Str("room_id", room.ID).Msg("created public room")
	}

	playerID := newPlayerID()
	player := game.NewPlayer(playerID, name)
	// The waiting room cannot be full here, so AddPlayer cannot fail.
	if err := room.AddPlayer(player); err != nil {
		m.log.Error().Err(err).Str("room_id", room.ID).Msg("join random match")
	}
	m.playerToRoom[playerID] = room.ID

	m.bus.Publish(events.Event{Kind: events.PlayerJoined, RoomID: room.ID,
		Payload: JoinedPayload{PlayerID: playerID, Name: name}})

	matched := false
	if room.Full() {
		m.startMatchingLocked(room)
		matched = true
	}

	return JoinResult{
		PlayerID: playerID,
		RoomID:   room.ID,
		Snapshot: room.Snapshot(),
		Matched:  matched,
	}
}

// CreatePrivateRoom opens an explicitly addressed room and seats the
// creator in it.
func (m *Manager) CreatePrivateRoom(name string, maxPlayers int) JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := game.NewRoom(newRoomID(), maxPlayers, true, m.bus)
	m.rooms[room.ID] = room
	m.register(room.ID)

	playerID := newPlayerID()
	if err := room.AddPlayer(game.NewPlayer(playerID, name)); err != nil {
		m.log.Error().Err(err).Str("room_id", room.ID).Msg("create private room")
	}
	m.playerToRoom[playerID] = room.ID

	m.log.Info().Str("room_id", room.ID).Str("room_code", roomCode(room.ID)).
		Msg("created private room")
	m.bus.Publish(events.Event{Kind: events.PlayerJoined, RoomID: room.ID,
		Payload: JoinedPayload{PlayerID: playerID, Name: name}})

	matched := false
	if room.Full() {
		m.startMatchingLocked(room)
		matched = true
	}

	return JoinResult{
		PlayerID: playerID,
		RoomID:   room.ID,
		RoomCode: roomCode(room.ID),
		Snapshot: room.Snapshot(),
		Matched:  matched,
	}
}

// JoinPrivateRoom seats a player in an explicitly addressed room. Unlike
// random matchmaking this can fail, and the failure is reported to the
// caller rather than swallowed.
func (m *Manager) JoinPrivateRoom(roomID, name string) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.rooms[roomID]
	if room == nil {
		return JoinResult{}, eris.Wrapf(ErrRoomNotFound, "room %s", roomID)
	}
	if room.Full() {
		return JoinResult{}, game.ErrRoomFull
	}
	if room.State != game.RoomWaiting {
		return JoinResult{}, ErrAlreadyStarted
	}

	playerID := newPlayerID()
	if err := room.AddPlayer(game.NewPlayer(playerID, name)); err != nil {
		return JoinResult{}, err
	}
	m.playerToRoom[playerID] = roomID

	m.bus.Publish(events.Event{Kind: events.PlayerJoined, RoomID: roomID,
		Payload: JoinedPayload{PlayerID: playerID, Name: name}})

	matched := false
	if room.Full() {
		m.startMatchingLocked(room)
		matched = true
	}

	return JoinResult{
		PlayerID: playerID,
		RoomID:   roomID,
		Snapshot: room.Snapshot(),
		Matched:  matched,
	}, nil
}

// startMatchingLocked flips a just-filled room to matching and draws teams:
// shuffle, then alternate. Balanced but deliberately not skill-based.
func (m *Manager) startMatchingLocked(room *game.Room) {
	room.State = game.RoomMatching

	players := room.Players()
	m.rng.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})
	for i, p := range players {
		if i%2 == 0 {
			p.Team = game.TeamAlpha
		} else {
			p.Team = game.TeamBravo
		}
	}

	m.log.Info().Str("room_id", room.ID).Int("players", len(players)).
		Msg("room full, matching complete")
	m.bus.Publish(events.Event{Kind: events.MatchingComplete, RoomID: room.ID})
}

// RemovePlayer detaches a player from their room. The room is deleted the
// moment its last player leaves; there is no idle timeout.
func (m *Manager) RemovePlayer(ctx context.Context, playerID string) (string, bool) {
	m.mu.Lock()
	roomID, ok := m.playerToRoom[playerID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	room := m.rooms[roomID]
	room.RemovePlayer(playerID)
	delete(m.playerToRoom, playerID)

	emptied := room.PlayerCount() == 0
	if emptied {
		delete(m.rooms, roomID)
		if m.waitingRoom != nil && m.waitingRoom.ID == roomID {
			m.waitingRoom = nil
		}
		m.unregister(roomID)
	}
	m.mu.Unlock()

	if m.positions != nil {
		m.positions.DeletePosition(ctx, roomID, playerID)
	}
	m.bus.Publish(events.Event{Kind: events.PlayerLeft, RoomID: roomID,
		Payload: JoinedPayload{PlayerID: playerID}})
	if emptied {
		m.clearCachedRoom(ctx, roomID)
		m.log.Info().Str("room_id", roomID).Msg("room emptied, removed")
	}
	return roomID, true
}

// ApplyUpdate folds a client position patch into the player and mirrors the
// resolved position into the cross-instance cache. The cache write is
// best-effort and happens outside the room lock.
func (m *Manager) ApplyUpdate(ctx context.Context, playerID string, patch game.PositionUpdate) bool {
	m.mu.Lock()
	roomID, ok := m.playerToRoom[playerID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	room := m.rooms[roomID]
	player := room.Player(playerID)
	if player == nil {
		m.mu.Unlock()
		return false
	}
	// A stunned player ignores all movement input, same as action input.
	if player.Stunned(time.Now()) {
		m.mu.Unlock()
		return false
	}
	player.ApplyUpdate(patch)
	resolved := game.CachedPosition{
		X:         player.X,
		Z:         player.Z,
		Direction: player.Direction,
		State:     player.State,
	}
	m.mu.Unlock()

	if m.positions != nil {
		m.positions.SetPosition(ctx, roomID, playerID, resolved)
	}
	m.bus.Publish(events.Event{Kind: events.PlayerUpdated, RoomID: roomID,
		Payload: UpdatedPayload{PlayerID: playerID}})
	return true
}

// ResolveAction runs the stateless action resolver against the player's
// current room.
func (m *Manager) ResolveAction(playerID string, action game.Action, directionDeg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.playerToRoom[playerID]
	if !ok {
		return
	}
	game.Resolve(m.rooms[roomID], playerID, action, directionDeg, time.Now())
}

// StartGame moves a matched room onto the pitch. Wrong-state commands are
// rejected with ErrWrongState; callers log and ignore per policy.
func (m *Manager) StartGame(ctx context.Context, roomID string) error {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		m.mu.Unlock()
		return eris.Wrapf(ErrRoomNotFound, "room %s", roomID)
	}
	if room.State != game.RoomMatching {
		m.mu.Unlock()
		return eris.Wrapf(ErrWrongState, "start on %s room", room.State)
	}
	room.State = game.RoomPlaying
	room.ResetPositions()
	snap := room.Snapshot()
	m.mu.Unlock()

	// Stale cached positions from the lobby must not leak into the match.
	m.clearCachedRoom(ctx, roomID)
	m.log.Info().Str("room_id", roomID).Msg("game started")
	m.bus.Publish(events.Event{Kind: events.GameStarted, RoomID: roomID,
		Payload: StartedPayload{Snapshot: snap}})
	return nil
}

// EndGame finishes a playing room and hands the result to the match store.
// A failed save never rolls the match back: the room stays finished and the
// failure is surfaced on the bus.
func (m *Manager) EndGame(ctx context.Context, roomID string) error {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		m.mu.Unlock()
		return eris.Wrapf(ErrRoomNotFound, "room %s", roomID)
	}
	if room.State != game.RoomPlaying {
		m.mu.Unlock()
		return eris.Wrapf(ErrWrongState, "end on %s room", room.State)
	}
	room.State = game.RoomFinished
	result := matchResultLocked(room)
	snap := room.Snapshot()
	m.mu.Unlock()

	return m.persistResult(ctx, roomID, result, snap)
}

// Restart rewinds a playing or finished room to a fresh kickoff.
func (m *Manager) Restart(ctx context.Context, roomID string) error {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		m.mu.Unlock()
		return eris.Wrapf(ErrRoomNotFound, "room %s", roomID)
	}
	if room.State != game.RoomPlaying && room.State != game.RoomFinished {
		m.mu.Unlock()
		return eris.Wrapf(ErrWrongState, "restart on %s room", room.State)
	}
	room.Rekick()
	snap := room.Snapshot()
	m.mu.Unlock()

	m.register(roomID)
	m.clearCachedRoom(ctx, roomID)
	m.log.Info().Str("room_id", roomID).Msg("game restarted")
	m.bus.Publish(events.Event{Kind: events.GameRestarted, RoomID: roomID,
		Payload: StartedPayload{Snapshot: snap}})
	return nil
}

// TickRoom advances one room by one frame: reconcile cached positions from
// other processes, tick physics, publish the snapshot, and run the
// end-of-match flow if the clock just expired. Unknown or non-playing
// rooms are silent no-ops and must not cost a cache round-trip; only
// playing rooms fetch positions. Cache I/O stays outside the room lock.
func (m *Manager) TickRoom(ctx context.Context, roomID string, now time.Time) {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil || room.State != game.RoomPlaying {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	var positions map[string]game.CachedPosition
	if m.positions != nil {
		positions = m.positions.AllPositions(ctx, roomID)
	}

	// The room may have changed state while positions were fetched.
	m.mu.Lock()
	room = m.rooms[roomID]
	if room == nil || room.State != game.RoomPlaying {
		m.mu.Unlock()
		return
	}
	if len(positions) > 0 {
		room.Reconcile(positions)
	}
	room.Tick(now)
	expired := room.State == game.RoomFinished
	var result persist.MatchResult
	if expired {
		result = matchResultLocked(room)
	}
	snap := room.Snapshot()
	m.mu.Unlock()

	m.bus.Publish(events.Event{Kind: events.GameTicked, RoomID: roomID,
		Payload: TickPayload{Snapshot: snap}})

	if expired {
		if err := m.persistResult(ctx, roomID, result, snap); err != nil {
			m.log.Error().Err(err).Str("room_id", roomID).Msg("persist expired match")
		}
	}
}

// persistResult saves a finished match, publishes the outcome, and retires
// the room from the scheduler and the cache.
func (m *Manager) persistResult(ctx context.Context, roomID string, result persist.MatchResult, snap game.RoomSnapshot) error {
	m.unregister(roomID)
	m.clearCachedRoom(ctx, roomID)

	outcome := persist.SaveOutcome{WinnerTeam: persist.Winner(result.Score)}
	if m.store != nil {
		var err error
		outcome, err = m.store.SaveMatch(ctx, result)
		if err != nil {
			m.log.Error().Err(err).Str("room_id", roomID).Msg("save match failed")
			m.bus.Publish(events.Event{Kind: events.MatchSaveFailed, RoomID: roomID,
				Payload: SaveFailedPayload{Message: "failed to save match result"}})
			return eris.Wrap(err, "save match")
		}
	}

	m.log.Info().Str("room_id", roomID).Int64("match_id", outcome.MatchID).
		Str("winner", outcome.WinnerTeam).Msg("game ended")
	m.bus.Publish(events.Event{Kind: events.GameEnded, RoomID: roomID,
		Payload: EndedPayload{MatchID: outcome.MatchID, Winner: outcome.WinnerTeam, Snapshot: snap}})
	return nil
}

func matchResultLocked(room *game.Room) persist.MatchResult {
	result := persist.MatchResult{Score: room.Score}
	for _, p := range room.Players() {
		result.Players = append(result.Players, persist.MatchPlayer{Name: p.Name, Team: p.Team})
	}
	return result
}

// Room returns a room by id, or nil. Exposed for the connection layer's
// read paths and for tests; mutation still goes through Manager methods.
func (m *Manager) Room(roomID string) *game.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID]
}

// RoomByPlayer resolves the room a player currently occupies.
func (m *Manager) RoomByPlayer(playerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.playerToRoom[playerID]
	return roomID, ok
}

// Snapshot captures a room's wire state under the manager lock.
func (m *Manager) Snapshot(roomID string) (game.RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.rooms[roomID]
	if room == nil {
		return game.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

// Stats reports matchmaking totals for the ops endpoint.
type Stats struct {
	TotalRooms   int `json:"totalRooms"`
	TotalPlayers int `json:"totalPlayers"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{TotalRooms: len(m.rooms), TotalPlayers: len(m.playerToRoom)}
}

func (m *Manager) clearCachedRoom(ctx context.Context, roomID string) {
	if m.positions != nil {
		m.positions.ClearRoom(ctx, roomID)
	}
}

func (m *Manager) register(roomID string) {
	if m.scheduler != nil {
		m.scheduler.Register(roomID)
	}
}

func (m *Manager) unregister(roomID string) {
	if m.scheduler != nil {
		m.scheduler.Unregister(roomID)
	}
}
