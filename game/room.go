package game

import (
	"math/rand"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pitchside/pitchside/events"
)

// RoomState is the match lifecycle. waiting -> matching (full, teams drawn)
// -> playing (start command) -> finished (clock or end command).
type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomMatching RoomState = "matching"
	RoomPlaying  RoomState = "playing"
	RoomFinished RoomState = "finished"
)

var (
	ErrRoomFull        = eris.New("room is full")
	ErrDuplicatePlayer = eris.New("player already in room")
)

// Room is one isolated match: its players, ball, score and clock. Rooms are
// mutated only by their own tick, by messages addressed to them, and by the
// manager's add/remove; the manager serializes all of it.
type Room struct {
	ID         string
	MaxPlayers int
	Private    bool
	CreatedAt  time.Time

	players map[string]*Player
	// order holds player ids in join order. The ball pickup scan walks this
	// slice, so the earliest joiner wins ties. That tie-break is part of the
	// game's observable behavior and must not fall back to map iteration.
	order []string

	Ball     *Ball
	Score    Score
	TimeLeft float64 // seconds
	State    RoomState

	lastTickAt time.Time
	rng        *rand.Rand
	bus        *events.Bus
}

// Score is goals per team.
type Score struct {
	Alpha int `json:"alpha"`
	Bravo int `json:"bravo"`
}

func NewRoom(id string, maxPlayers int, private bool, bus *events.Bus) *Room {
	if maxPlayers <= 0 {
		maxPlayers = DefaultRoomSize
	}
	return &Room{
		ID:         id,
		MaxPlayers: maxPlayers,
		Private:    private,
		CreatedAt:  time.Now(),
		players:    make(map[string]*Player),
		Ball:       NewBall(),
		TimeLeft:   MatchDuration,
		State:      RoomWaiting,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		bus:        bus,
	}
}

// SeedRNG replaces the jitter source; used by tests for determinism.
func (r *Room) SeedRNG(seed int64) {
	r.rng = rand.New(rand.NewSource(seed))
}

func (r *Room) emit(kind events.Kind, payload any) {
	r.bus.Publish(events.Event{Kind: kind, RoomID: r.ID, Payload: payload})
}

// AddPlayer registers a player. Only the manager calls this.
func (r *Room) AddPlayer(p *Player) error {
	if _, ok := r.players[p.ID]; ok {
		return eris.Wrapf(ErrDuplicatePlayer, "player %s", p.ID)
	}
	if r.PlayerCount() >= r.MaxPlayers {
		return ErrRoomFull
	}
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// RemovePlayer drops a player and releases the ball if they carried it.
func (r *Room) RemovePlayer(playerID string) {
	if _, ok := r.players[playerID]; !ok {
		return
	}
	delete(r.players, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.Ball.OwnerID == playerID {
		r.Ball.ClearOwner()
	}
}

func (r *Room) PlayerCount() int { return len(r.players) }

func (r *Room) Full() bool { return r.PlayerCount() >= r.MaxPlayers }

// Player returns the player by id, or nil.
func (r *Room) Player(id string) *Player { return r.players[id] }

// Players returns the players in join order.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// PlayersByTeam filters players in join order.
func (r *Room) PlayersByTeam(team Team) []*Player {
	var out []*Player
	for _, p := range r.Players() {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// ResetPositions recenters the ball, stops it, scatters the players around
// midfield and clears every stun. Used at kickoff, after goals, and on
// restart.
func (r *Room) ResetPositions() {
	centerX, centerZ := FieldWidth/2, FieldHeight/2

	r.Ball.X = centerX
	r.Ball.Z = centerZ
	r.Ball.VX = 0
	r.Ball.VZ = 0
	r.Ball.ClearOwner()

	for _, p := range r.Players() {
		p.X = centerX - ResetJitter + r.rng.Float64()*2*ResetJitter
		p.Z = centerZ - ResetJitter + r.rng.Float64()*2*ResetJitter
		p.State = StateIdle
		p.StunUntil = time.Time{}
	}
}

// Rekick rewinds the room to a fresh kickoff: full clock, zero score,
// reset positions. The tick clock re-arms on the next tick so time spent
// finished or paused is not charged against the new match.
func (r *Room) Rekick() {
	r.TimeLeft = MatchDuration
	r.Score = Score{}
	r.ResetPositions()
	r.State = RoomPlaying
	r.lastTickAt = time.Time{}
}

// GoalPayload rides the GoalScored event; the snapshot is post-reset.
type GoalPayload struct {
	Team     Team
	Score    Score
	Snapshot RoomSnapshot
}

// Tick advances the match by one frame: expire timed states, run ball
// pickup and physics, test for goals, and run down the clock. A tick on a
// room that is not playing is a silent no-op.
func (r *Room) Tick(now time.Time) {
	if r.State != RoomPlaying {
		return
	}

	for _, p := range r.Players() {
		if p.State == StateStun && !now.Before(p.StunUntil) {
			p.ClearStun()
		}
		if (p.State == StateKick || p.State == StateTackle) && now.After(p.LastActionAt.Add(ActionHold)) {
			p.State = StateIdle
		}
	}

	// A stopped loose ball goes to the first eligible player in join order
	// within pickup range.
	if r.Ball.OwnerID == "" && !r.Ball.Moving() {
		for _, p := range r.Players() {
			if p.State == StateStun {
				continue
			}
			if distance(p.X, p.Z, r.Ball.X, r.Ball.Z) < PickupRange {
				r.Ball.SetOwner(p.ID)
				break
			}
		}
	}

	if owner := r.players[r.Ball.OwnerID]; owner != nil {
		// Possession overrides physics: the ball rides the owner.
		r.Ball.X = owner.X
		r.Ball.Z = owner.Z
	} else {
		r.Ball.Step()
		// A moving ball can still be intercepted on contact; this scan is
		// range-only, not gated on the ball having stopped.
		for _, p := range r.Players() {
			if p.State == StateStun {
				continue
			}
			dx, dz := p.X-r.Ball.X, p.Z-r.Ball.Z
			if dx*dx+dz*dz <= PickupRange*PickupRange {
				r.Ball.SetOwner(p.ID)
				break
			}
		}
	}

	// Goal test. The z-interval check makes the two goal lines mutually
	// exclusive: one tick can never score for both teams.
	inMouth := r.Ball.Z > GoalMouthMinZ && r.Ball.Z < GoalMouthMaxZ
	switch {
	case inMouth && r.Ball.X < GoalLineDepth:
		r.Score.Bravo++
		r.ResetPositions()
		r.emit(events.GoalScored, GoalPayload{Team: TeamBravo, Score: r.Score, Snapshot: r.Snapshot()})
	case inMouth && r.Ball.X > FieldWidth-GoalLineDepth:
		r.Score.Alpha++
		r.ResetPositions()
		r.emit(events.GoalScored, GoalPayload{Team: TeamAlpha, Score: r.Score, Snapshot: r.Snapshot()})
	}

	// Each room keys the clock on its own previous tick so rooms ticked at
	// slightly different wall-clock moments stay correct.
	if !r.lastTickAt.IsZero() {
		if dt := now.Sub(r.lastTickAt).Seconds(); dt > 0 {
			r.TimeLeft -= dt
			if r.TimeLeft <= 0 {
				r.TimeLeft = 0
				r.State = RoomFinished
			}
		}
	}
	r.lastTickAt = now
}

// CachedPosition is a player position as stored in the cross-instance
// cache: absolute values, last write wins.
type CachedPosition struct {
	X         float64     `json:"x"`
	Z         float64     `json:"z"`
	Direction float64     `json:"direction"`
	State     PlayerState `json:"state"`
}

// Reconcile folds externally cached positions into the in-memory players.
// Entries for unknown players are ignored, and a stunned player's entry is
// skipped whole: stun is server authority, and a stunned player ignores
// all movement input. Runs before physics each tick.
func (r *Room) Reconcile(positions map[string]CachedPosition) {
	for id, pos := range positions {
		p := r.players[id]
		if p == nil || p.State == StateStun {
			continue
		}
		x, z, dir := pos.X, pos.Z, pos.Direction
		state := pos.State
		u := PositionUpdate{X: &x, Z: &z, Direction: &dir}
		if state != "" {
			u.State = &state
		}
		p.ApplyUpdate(u)
	}
}

// PlayerSnapshot is the wire view of a player.
type PlayerSnapshot struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Team      Team        `json:"team"`
	X         float64     `json:"x"`
	Z         float64     `json:"z"`
	Direction float64     `json:"direction"`
	State     PlayerState `json:"state"`
}

// BallSnapshot is the wire view of the ball. Velocity is deliberately never
// serialized to clients.
type BallSnapshot struct {
	X       float64 `json:"x"`
	Z       float64 `json:"z"`
	OwnerID string  `json:"ownerId"`
}

// RoomSnapshot is the full serializable room state broadcast to clients.
type RoomSnapshot struct {
	RoomID      string           `json:"roomId"`
	State       RoomState        `json:"state"`
	Players     []PlayerSnapshot `json:"players"`
	Ball        BallSnapshot     `json:"ball"`
	Score       Score            `json:"score"`
	TimeLeft    float64          `json:"timeLeft"`
	PlayerCount int              `json:"playerCount"`
	MaxPlayers  int              `json:"maxPlayers"`
}

// Snapshot captures the room for broadcast.
func (r *Room) Snapshot() RoomSnapshot {
	players := make([]PlayerSnapshot, 0, len(r.order))
	for _, p := range r.Players() {
		players = append(players, PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Team:      p.Team,
			X:         p.X,
			Z:         p.Z,
			Direction: p.Direction,
			State:     p.State,
		})
	}
	return RoomSnapshot{
		RoomID:      r.ID,
		State:       r.State,
		Players:     players,
		Ball:        BallSnapshot{X: r.Ball.X, Z: r.Ball.Z, OwnerID: r.Ball.OwnerID},
		Score:       r.Score,
		TimeLeft:    r.TimeLeft,
		PlayerCount: r.PlayerCount(),
		MaxPlayers:  r.MaxPlayers,
	}
}
