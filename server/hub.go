package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/events"
	"github.com/pitchside/pitchside/game"
	"github.com/pitchside/pitchside/match"
	"github.com/pitchside/pitchside/metrics"
)

// roomWriter is one attached connection's outbound half.
type roomWriter interface {
	writeMessage(data []byte)
}

// Hub fans simulation output out to connections, keyed by room. It
// subscribes to the event bus once and translates bus events into wire
// messages; connection attach/detach is driven by the session layer.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[roomWriter]struct{}
	log   zerolog.Logger
}

func NewHub(bus *events.Bus, log zerolog.Logger) *Hub {
	h := &Hub{
		rooms: make(map[string]map[roomWriter]struct{}),
		log:   log,
	}
	bus.Subscribe(h.handleEvent)
	return h
}

func (h *Hub) attach(roomID string, w roomWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.rooms[roomID]
	if conns == nil {
		conns = make(map[roomWriter]struct{})
		h.rooms[roomID] = conns
	}
	conns[w] = struct{}{}
	metrics.GaugeConnections(h.totalLocked())
}

func (h *Hub) detach(roomID string, w roomWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.rooms[roomID]
	delete(conns, w)
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
	metrics.GaugeConnections(h.totalLocked())
}

func (h *Hub) totalLocked() int {
	total := 0
	for _, conns := range h.rooms {
		total += len(conns)
	}
	return total
}

// Broadcast sends an encoded message to every connection in a room.
func (h *Hub) Broadcast(roomID, msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("msg_type", msgType).Msg("encode broadcast")
		return
	}

	h.mu.RLock()
	writers := make([]roomWriter, 0, len(h.rooms[roomID]))
	for w := range h.rooms[roomID] {
		writers = append(writers, w)
	}
	h.mu.RUnlock()

	for _, w := range writers {
		w.writeMessage(data)
	}
}

// handleEvent maps simulation events to wire broadcasts. Events with no
// client-facing message fall through silently; join and matching messages
// are sent by the session layer so the joining connection is attached
// before the broadcast goes out.
func (h *Hub) handleEvent(ev events.Event) {
	switch ev.Kind {
	case events.GameTicked:
		if p, ok := ev.Payload.(match.TickPayload); ok {
			h.Broadcast(ev.RoomID, msgTick, p.Snapshot)
		}
	case events.GameStarted:
		if p, ok := ev.Payload.(match.StartedPayload); ok {
			h.Broadcast(ev.RoomID, msgGameStart, p.Snapshot)
		}
	case events.GameRestarted:
		if p, ok := ev.Payload.(match.StartedPayload); ok {
			h.Broadcast(ev.RoomID, msgGameRestart, p.Snapshot)
		}
	case events.GameEnded:
		if p, ok := ev.Payload.(match.EndedPayload); ok {
			h.Broadcast(ev.RoomID, msgGameEnd, gameEndPayload{
				RoomSnapshot: p.Snapshot,
				MatchID:      p.MatchID,
				Winner:       p.Winner,
			})
		}
	case events.GoalScored:
		if p, ok := ev.Payload.(game.GoalPayload); ok {
			metrics.CountGoal(string(p.Team))
			h.Broadcast(ev.RoomID, msgGoalScored, goalScoredPayload{
				Team:      p.Team,
				Score:     p.Score,
				RoomState: p.Snapshot,
			})
		}
	case events.BallKicked:
		if p, ok := ev.Payload.(game.KickPayload); ok {
			h.Broadcast(ev.RoomID, msgBallKicked, ballKickedPayload{
				PlayerID:  p.PlayerID,
				Direction: p.Direction,
				BallPos:   ballPos{X: p.BallX, Z: p.BallZ},
			})
		}
	case events.MatchSaveFailed:
		if p, ok := ev.Payload.(match.SaveFailedPayload); ok {
			h.Broadcast(ev.RoomID, msgError, errorPayload{Message: p.Message})
		}
	}
}
