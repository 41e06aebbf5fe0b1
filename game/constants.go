package game

import "time"

// Field geometry. The pitch is an axis-aligned 600x400 rectangle; x runs
// goal to goal, z runs touchline to touchline. Goals are axis-aligned boxes:
// a ball inside the goal mouth z-interval that crosses either goal line
// depth scores. Arcade approximation, intentionally not realistic.
const (
	FieldWidth  = 600.0
	FieldHeight = 400.0

	GoalLineDepth = 30.0
	GoalMouthMinZ = 150.0
	GoalMouthMaxZ = 250.0
)

// Ball physics tuning.
const (
	KickPower   = 12.0
	Restitution = 0.8  // wall bounce keeps 80% of speed, reversed
	Damping     = 0.98 // per tick
	StopEpsilon = 0.5  // below this speed the ball is pinned to zero
)

// Action ranges and scoring, in field units.
const (
	PickupRange = 25.0
	TackleRange = 30.0
	PassRange   = 100.0

	// A pass candidate is scored dist + PassAngleWeight*angleDiff and
	// accepted under PassRange+PassAcceptSlack; otherwise the pass degrades
	// to a forward kick.
	PassAngleWeight = 2.0
	PassAcceptSlack = 50.0
)

// Timers.
const (
	StunDuration  = 2 * time.Second
	ActionHold    = 100 * time.Millisecond
	MatchDuration = 180.0 // seconds on the match clock

	ResetJitter = 50.0 // players respawn within +-ResetJitter of center
)

// DefaultRoomSize is the public matchmaking room capacity.
const DefaultRoomSize = 6
