package game

import (
	"math"
	"time"
)

// Team labels the two sides of a match. A freshly joined player is
// unassigned until the room fills and teams are drawn.
type Team string

const (
	TeamAlpha      Team = "alpha"
	TeamBravo      Team = "bravo"
	TeamUnassigned Team = ""
)

// PlayerState is the discrete animation/logic state. Clients may report
// idle/run/kick/tackle through updates; stun is owned by the server and can
// never be set from the outside.
type PlayerState string

const (
	StateIdle   PlayerState = "idle"
	StateRun    PlayerState = "run"
	StateKick   PlayerState = "kick"
	StateTackle PlayerState = "tackle"
	StateStun   PlayerState = "stun"
)

// Player is one participant of a room, server-authoritative for team, state
// and timers while the client streams position updates.
type Player struct {
	ID           string
	Name         string
	Team         Team
	X            float64
	Z            float64
	Direction    float64 // degrees, [0,360)
	State        PlayerState
	StunUntil    time.Time
	LastActionAt time.Time
}

func NewPlayer(id, name string) *Player {
	return &Player{ID: id, Name: name, State: StateIdle}
}

// PositionUpdate is a partial patch from a client (or the cross-instance
// cache). Nil fields keep the current value.
type PositionUpdate struct {
	X         *float64
	Z         *float64
	Direction *float64
	State     *PlayerState
}

// ApplyUpdate folds a patch into the player. Coordinates are clamped to the
// field, the direction is normalized, and a client-claimed stun state is
// refused outright.
func (p *Player) ApplyUpdate(u PositionUpdate) {
	if u.X != nil {
		p.X = clamp(*u.X, 0, FieldWidth)
	}
	if u.Z != nil {
		p.Z = clamp(*u.Z, 0, FieldHeight)
	}
	if u.Direction != nil {
		p.Direction = normalizeDeg360(*u.Direction)
	}
	if u.State != nil && *u.State != StateStun {
		p.State = *u.State
	}
}

// Stun puts the player into the timed stun state. A stunned player ignores
// all movement and action input until the deadline passes.
func (p *Player) Stun(now time.Time) {
	p.State = StateStun
	p.StunUntil = now.Add(StunDuration)
}

// Stunned reports whether the stun is still in effect.
func (p *Player) Stunned(now time.Time) bool {
	return p.State == StateStun && now.Before(p.StunUntil)
}

// ClearStun drops an expired stun. It only acts if the player is actually
// stunned, so a concurrent state change is never clobbered.
func (p *Player) ClearStun() {
	if p.State == StateStun {
		p.State = StateIdle
		p.StunUntil = time.Time{}
	}
}

// normalizeDeg360 maps any angle into [0,360).
func normalizeDeg360(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	return m
}

// normalizeDeg180 maps any angle into (-180,180].
func normalizeDeg180(deg float64) float64 {
	m := normalizeDeg360(deg)
	if m > 180 {
		m -= 360
	}
	return m
}

// angleDiffDeg is the absolute smallest difference between two bearings,
// in [0,180].
func angleDiffDeg(a, b float64) float64 {
	return math.Abs(normalizeDeg180(a - b))
}

func distance(x1, z1, x2, z2 float64) float64 {
	return math.Hypot(x2-x1, z2-z1)
}

// bearingDeg is the bearing from (x1,z1) toward (x2,z2) in degrees.
func bearingDeg(x1, z1, x2, z2 float64) float64 {
	return math.Atan2(z2-z1, x2-x1) * 180 / math.Pi
}
