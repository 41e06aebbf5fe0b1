package game

import "math"

// Ball is the single ball of a room. OwnerID is a back-reference to the
// possessing player; while owned the ball has no free physics of its own.
type Ball struct {
	X       float64
	Z       float64
	VX      float64
	VZ      float64
	OwnerID string
}

func NewBall() *Ball {
	return &Ball{X: FieldWidth / 2, Z: FieldHeight / 2}
}

// SetOwner grants possession. Possession suppresses free physics, so the
// velocity is zeroed here to keep the owned-implies-stopped invariant.
func (b *Ball) SetOwner(playerID string) {
	b.OwnerID = playerID
	b.VX = 0
	b.VZ = 0
}

// ClearOwner releases possession without imparting velocity.
func (b *Ball) ClearOwner() {
	b.OwnerID = ""
}

// Kick releases the ball with a velocity derived from the direction in
// degrees and the given power.
func (b *Ball) Kick(directionDeg, power float64) {
	b.OwnerID = ""
	rad := directionDeg * math.Pi / 180
	b.VX = power * math.Cos(rad)
	b.VZ = power * math.Sin(rad)
}

// Step advances free ball physics by one tick: integrate, reflect off the
// field bounds with restitution, damp, and pin sub-epsilon speeds to an
// exact zero so a slow ball never drifts forever.
func (b *Ball) Step() {
	b.X += b.VX
	b.Z += b.VZ

	if b.X < 0 || b.X > FieldWidth {
		b.VX *= -Restitution
		b.X = clamp(b.X, 0, FieldWidth)
	}
	if b.Z < 0 || b.Z > FieldHeight {
		b.VZ *= -Restitution
		b.Z = clamp(b.Z, 0, FieldHeight)
	}

	b.VX *= Damping
	b.VZ *= Damping

	if math.Hypot(b.VX, b.VZ) < StopEpsilon {
		b.VX = 0
		b.VZ = 0
	}
}

// Moving reports whether the ball still has meaningful speed.
func (b *Ball) Moving() bool {
	return math.Hypot(b.VX, b.VZ) >= StopEpsilon
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
