// Package events is the in-process side channel for game state changes.
// Rooms and the manager publish typed events; the websocket layer, metrics,
// and logging subscribe. Dispatch is synchronous and in registration order,
// so a subscriber sees events in the exact order the simulation produced
// them.
package events

import (
	"github.com/rs/zerolog"
)

// Kind identifies one of the known event types. The set is closed; consumers
// switch over it exhaustively.
type Kind string

const (
	PlayerJoined     Kind = "player.joined"
	PlayerLeft       Kind = "player.left"
	PlayerUpdated    Kind = "player.updated"
	PlayerStunned    Kind = "player.stunned"
	BallKicked       Kind = "ball.kicked"
	BallOwned        Kind = "ball.owned"
	GoalScored       Kind = "goal.scored"
	MatchingComplete Kind = "match.complete"
	GameStarted      Kind = "game.started"
	GameTicked       Kind = "game.ticked"
	GameEnded        Kind = "game.ended"
	GameRestarted    Kind = "game.restarted"
	MatchSaveFailed  Kind = "match.save_failed"
	ActionTackle     Kind = "action.tackle"
	ActionPass       Kind = "action.pass"
)

// Event carries one state change scoped to a room. Payload holds a
// kind-specific struct declared next to the producer.
type Event struct {
	Kind    Kind
	RoomID  string
	Payload any
}

// Handler receives every published event. Handlers must not block; they run
// on the publisher's goroutine.
type Handler func(Event)

// Bus fans events out to explicitly registered handlers. There is no
// wildcard or per-kind subscription; handlers filter on Kind themselves.
type Bus struct {
	handlers []Handler
	log      zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a handler. All subscriptions happen during process
// wiring, before any publisher runs, so no locking is needed.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every handler in registration order. A
// panicking handler is recovered and logged; a broken subscriber must not
// take down the tick loop or a connection goroutine.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	for _, h := range b.handlers {
		b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("kind", string(ev.Kind)).
				Str("room_id", ev.RoomID).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	h(ev)
}
