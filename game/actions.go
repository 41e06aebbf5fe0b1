package game

import (
	"time"

	"github.com/pitchside/pitchside/events"
)

// Action is one of the three player actions resolved against the room's
// current layout.
type Action string

const (
	ActionKick   Action = "kick"
	ActionTackle Action = "tackle"
	ActionPass   Action = "pass"
)

// ParseAction validates a client-supplied action tag.
func ParseAction(value string) (Action, bool) {
	switch Action(value) {
	case ActionKick, ActionTackle, ActionPass:
		return Action(value), true
	default:
		return "", false
	}
}

// Event payloads produced by the resolver.
type (
	// KickPayload rides BallKicked.
	KickPayload struct {
		PlayerID  string
		Direction float64
		BallX     float64
		BallZ     float64
	}
	// OwnershipPayload rides BallOwned when possession changes hands.
	OwnershipPayload struct {
		PlayerID     string
		FromPlayerID string
	}
	// StunPayload rides PlayerStunned.
	StunPayload struct {
		PlayerID  string
		TacklerID string
	}
	// TacklePayload rides every tackle attempt; TargetID is empty on a miss.
	TacklePayload struct {
		PlayerID string
		TargetID string
	}
	// PassPayload rides every pass attempt.
	PassPayload struct {
		PlayerID string
		TargetID string
		Success  bool
	}
)

// Resolve applies one action for one player against the room's current
// player/ball layout. It is stateless between calls: everything it needs is
// (room, playerID, action, direction). Unknown actors, stunned actors and
// rooms that are not playing resolve to a no-op.
func Resolve(r *Room, playerID string, action Action, directionDeg float64, now time.Time) {
	p := r.Player(playerID)
	if p == nil || r.State != RoomPlaying || p.Stunned(now) {
		return
	}
	directionDeg = normalizeDeg180(directionDeg)

	switch action {
	case ActionKick:
		resolveKick(r, p, directionDeg, now)
	case ActionTackle:
		resolveTackle(r, p, now)
	case ActionPass:
		resolvePass(r, p, directionDeg, now)
	}
}

// ensurePossession grants the ball to the player when they either own it
// already or stand within pickup range of it.
func ensurePossession(r *Room, p *Player) bool {
	if r.Ball.OwnerID == p.ID {
		return true
	}
	dx, dz := p.X-r.Ball.X, p.Z-r.Ball.Z
	if dx*dx+dz*dz <= PickupRange*PickupRange {
		r.Ball.SetOwner(p.ID)
		return true
	}
	return false
}

func resolveKick(r *Room, p *Player, directionDeg float64, now time.Time) {
	if !ensurePossession(r, p) {
		return
	}
	r.Ball.Kick(directionDeg, KickPower)
	p.State = StateKick
	p.LastActionAt = now
	r.emit(events.BallKicked, KickPayload{
		PlayerID:  p.ID,
		Direction: directionDeg,
		BallX:     r.Ball.X,
		BallZ:     r.Ball.Z,
	})
}

// resolveTackle stuns the nearest opposing, non-stunned player within
// tackle range. Possession transfers when the target carried the ball. The
// tackler commits to the tackle animation whether or not anyone was hit.
func resolveTackle(r *Room, p *Player, now time.Time) {
	var target *Player
	minDist := TackleRange
	for _, cand := range r.Players() {
		if cand.Team == p.Team || cand.State == StateStun {
			continue
		}
		if d := distance(cand.X, cand.Z, p.X, p.Z); d < minDist {
			minDist = d
			target = cand
		}
	}

	if target != nil {
		if r.Ball.OwnerID == target.ID {
			r.Ball.SetOwner(p.ID)
			r.emit(events.BallOwned, OwnershipPayload{PlayerID: p.ID, FromPlayerID: target.ID})
		}
		target.Stun(now)
		r.emit(events.PlayerStunned, StunPayload{PlayerID: target.ID, TacklerID: p.ID})
	}

	payload := TacklePayload{PlayerID: p.ID}
	if target != nil {
		payload.TargetID = target.ID
	}
	r.emit(events.ActionTackle, payload)

	p.State = StateTackle
	p.LastActionAt = now
}

// resolvePass hands the ball to the best-aimed teammate in pass range. The
// composite score is dist + 2*angleDiff(direction, bearing); the minimum
// must stay under PassRange+PassAcceptSlack or the pass degrades into a
// plain kick along the requested direction. The x2 angle weight and the
// slack threshold are deliberate tuning, not nearest-neighbor.
func resolvePass(r *Room, p *Player, directionDeg float64, now time.Time) {
	if !ensurePossession(r, p) {
		return
	}

	var target *Player
	minScore := PassRange + PassAcceptSlack
	for _, cand := range r.Players() {
		if cand.Team != p.Team || cand.ID == p.ID {
			continue
		}
		dist := distance(cand.X, cand.Z, p.X, p.Z)
		if dist >= PassRange {
			continue
		}
		bearing := bearingDeg(p.X, p.Z, cand.X, cand.Z)
		score := dist + PassAngleWeight*angleDiffDeg(bearing, directionDeg)
		if score < minScore {
			minScore = score
			target = cand
		}
	}

	if target != nil {
		r.Ball.SetOwner(target.ID)
		r.emit(events.BallOwned, OwnershipPayload{PlayerID: target.ID, FromPlayerID: p.ID})
	} else {
		r.Ball.Kick(directionDeg, KickPower)
		r.emit(events.BallKicked, KickPayload{
			PlayerID:  p.ID,
			Direction: directionDeg,
			BallX:     r.Ball.X,
			BallZ:     r.Ball.Z,
		})
	}

	payload := PassPayload{PlayerID: p.ID, Success: target != nil}
	if target != nil {
		payload.TargetID = target.ID
	}
	r.emit(events.ActionPass, payload)

	p.State = StateKick
	p.LastActionAt = now
}
