package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestApplyUpdateClampsToField(t *testing.T) {
	p := NewPlayer("p1", "alice")

	p.ApplyUpdate(PositionUpdate{X: ptr(-20.0), Z: ptr(FieldHeight + 50)})

	assert.Equal(t, 0.0, p.X)
	assert.Equal(t, FieldHeight, p.Z)
}

func TestApplyUpdateNormalizesDirection(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{360, 0},
		{-90, 270},
		{450, 90},
		{-720, 0},
	}
	for _, tc := range cases {
		p := NewPlayer("p1", "alice")
		p.ApplyUpdate(PositionUpdate{Direction: ptr(tc.in)})
		assert.InDelta(t, tc.want, p.Direction, 1e-9, "direction %v", tc.in)
	}
}

func TestApplyUpdateRefusesClientStun(t *testing.T) {
	p := NewPlayer("p1", "alice")
	p.State = StateRun

	p.ApplyUpdate(PositionUpdate{State: ptr(StateStun)})
	assert.Equal(t, StateRun, p.State, "stun is server-owned")

	p.ApplyUpdate(PositionUpdate{State: ptr(StateKick)})
	assert.Equal(t, StateKick, p.State)
}

func TestApplyUpdateKeepsUnsetFields(t *testing.T) {
	p := NewPlayer("p1", "alice")
	p.X, p.Z, p.Direction = 100, 150, 45

	p.ApplyUpdate(PositionUpdate{X: ptr(200.0)})

	assert.Equal(t, 200.0, p.X)
	assert.Equal(t, 150.0, p.Z)
	assert.Equal(t, 45.0, p.Direction)
}

func TestStunInvariant(t *testing.T) {
	now := time.Now()
	p := NewPlayer("p1", "alice")

	p.Stun(now)
	assert.Equal(t, StateStun, p.State)
	assert.True(t, p.Stunned(now))
	assert.True(t, p.Stunned(now.Add(StunDuration-time.Millisecond)))
	assert.False(t, p.Stunned(now.Add(StunDuration)), "stun ends exactly at the deadline")
}

func TestClearStunOnlyActsOnStunnedPlayers(t *testing.T) {
	p := NewPlayer("p1", "alice")
	p.State = StateKick

	p.ClearStun()
	assert.Equal(t, StateKick, p.State)

	p.Stun(time.Now())
	p.ClearStun()
	assert.Equal(t, StateIdle, p.State)
	assert.True(t, p.StunUntil.IsZero())
}

func TestAngleDiffDeg(t *testing.T) {
	assert.InDelta(t, 0, angleDiffDeg(10, 10), 1e-9)
	assert.InDelta(t, 180, angleDiffDeg(0, 180), 1e-9)
	assert.InDelta(t, 20, angleDiffDeg(-10, 10), 1e-9)
	assert.InDelta(t, 10, angleDiffDeg(355, 5), 1e-9, "wraps across zero")
}
