package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/game"
	"github.com/pitchside/pitchside/match"
)

const (
	writeWait = 10 * time.Second

	// updateInterval is the per-connection floor between accepted position
	// updates. Early updates are dropped, never queued.
	updateInterval = 40 * time.Millisecond
)

// session is one client connection's state machine. It starts
// unauthenticated; join/createRoom/joinRoom bind it to a player and room.
// All reads happen on the session's own goroutine, so the identity fields
// need no lock; only writes are shared with the hub.
type session struct {
	conn *websocket.Conn
	hub  *Hub
	mgr  *match.Manager
	log  zerolog.Logger

	writeMu sync.Mutex

	playerID     string
	roomID       string
	lastUpdateAt time.Time
}

func newSession(conn *websocket.Conn, hub *Hub, mgr *match.Manager, log zerolog.Logger) *session {
	return &session{conn: conn, hub: hub, mgr: mgr, log: log}
}

// serve reads messages until the transport closes, then applies leave
// semantics. A panic in a handler drops that message, not the connection.
func (s *session) serve(ctx context.Context) {
	defer s.leave(ctx)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Str("player_id", s.playerID).Msg("connection closed")
			return
		}
		s.dispatch(ctx, raw)
	}
}

func (s *session) dispatch(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("player_id", s.playerID).
				Msg("recovered message handler panic")
			s.sendError("internal server error")
		}
	}()

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed message")
		return
	}

	switch env.Type {
	case msgJoin:
		s.handleJoin(env)
	case msgCreateRoom:
		s.handleCreateRoom(env)
	case msgJoinRoom:
		s.handleJoinRoom(env)
	case msgUpdate:
		s.handleUpdate(ctx, env)
	case msgAction:
		s.handleAction(env)
	case msgControl:
		s.handleControl(ctx, env)
	case msgLeave:
		s.leave(ctx)
	default:
		s.log.Warn().Str("msg_type", env.Type).Msg("unknown message type")
	}
}

func playerName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

func (s *session) handleJoin(env Envelope) {
	if s.playerID != "" {
		s.sendError("already in a room")
		return
	}
	p, err := decodePayload[joinPayload](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed join")
		return
	}

	res := s.mgr.JoinRandomMatch(playerName(p.Name))
	s.bind(res)

	s.send(msgJoinAck, joinAckPayload{PlayerID: res.PlayerID, RoomSnapshot: res.Snapshot})
	s.announce(res)
}

func (s *session) handleCreateRoom(env Envelope) {
	if s.playerID != "" {
		s.sendError("already in a room")
		return
	}
	p, err := decodePayload[createRoomPayload](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed createRoom")
		return
	}
	maxPlayers := p.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = game.DefaultRoomSize
	}

	res := s.mgr.CreatePrivateRoom(playerName(p.Name), maxPlayers)
	s.bind(res)

	s.send(msgCreateRoomAck, createRoomAckPayload{
		PlayerID:     res.PlayerID,
		RoomCode:     res.RoomCode,
		RoomSnapshot: res.Snapshot,
	})
	s.announce(res)
}

func (s *session) handleJoinRoom(env Envelope) {
	if s.playerID != "" {
		s.sendError("already in a room")
		return
	}
	p, err := decodePayload[joinRoomPayload](env)
	if err != nil || p.RoomID == "" {
		s.log.Warn().Err(err).Msg("dropping malformed joinRoom")
		return
	}

	res, err := s.mgr.JoinPrivateRoom(p.RoomID, playerName(p.Name))
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", p.RoomID).Msg("join private room")
		s.sendError(err.Error())
		return
	}
	s.bind(res)

	s.send(msgJoinRoomAck, joinAckPayload{PlayerID: res.PlayerID, RoomSnapshot: res.Snapshot})
	s.announce(res)
}

// bind attaches the session to the hub before any broadcast so the joiner
// receives room traffic from its own join onward.
func (s *session) bind(res match.JoinResult) {
	s.playerID = res.PlayerID
	s.roomID = res.RoomID
	s.hub.attach(res.RoomID, s)
}

// announce broadcasts the join to the room, and the matching handshake if
// this join filled it.
func (s *session) announce(res match.JoinResult) {
	s.hub.Broadcast(res.RoomID, msgPlayerJoined, res.Snapshot)
	if res.Matched {
		snap, ok := s.mgr.Snapshot(res.RoomID)
		if ok {
			s.hub.Broadcast(res.RoomID, msgMatchingComplete, snap)
		}
	}
}

func (s *session) handleUpdate(ctx context.Context, env Envelope) {
	if s.playerID == "" {
		return
	}

	now := time.Now()
	if now.Sub(s.lastUpdateAt) < updateInterval {
		return
	}

	p, err := decodePayload[updatePayload](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed update")
		return
	}
	// Only an accepted patch consumes the rate-limit window; malformed
	// input must not shadow the next valid update.
	s.lastUpdateAt = now

	patch := game.PositionUpdate{X: p.X, Z: p.Z, Direction: p.Direction}
	if p.State != nil {
		state := game.PlayerState(*p.State)
		patch.State = &state
	}
	s.mgr.ApplyUpdate(ctx, s.playerID, patch)
}

func (s *session) handleAction(env Envelope) {
	if s.playerID == "" {
		return
	}
	p, err := decodePayload[actionPayload](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed action")
		return
	}
	action, ok := game.ParseAction(p.Action)
	if !ok {
		s.log.Warn().Str("action", p.Action).Msg("unknown action")
		return
	}
	s.mgr.ResolveAction(s.playerID, action, p.Direction)
}

func (s *session) handleControl(ctx context.Context, env Envelope) {
	if s.playerID == "" || s.roomID == "" {
		return
	}
	p, err := decodePayload[controlPayload](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed control")
		return
	}

	// Wrong-state and not-found failures are logged and ignored; a save
	// failure already reaches the room as an error broadcast.
	var cmdErr error
	switch p.Command {
	case "startGame":
		cmdErr = s.mgr.StartGame(ctx, s.roomID)
	case "endGame":
		cmdErr = s.mgr.EndGame(ctx, s.roomID)
	case "restart":
		cmdErr = s.mgr.Restart(ctx, s.roomID)
	default:
		s.log.Warn().Str("command", p.Command).Msg("unknown control command")
		return
	}
	if cmdErr != nil {
		s.log.Warn().Err(cmdErr).Str("command", p.Command).
			Str("room_id", s.roomID).Msg("control command rejected")
	}
}

// leave detaches the session from its room. Called for explicit leave
// messages and implicitly on transport close; the connection stays usable
// for a later join after an explicit leave.
func (s *session) leave(ctx context.Context) {
	if s.playerID == "" {
		return
	}
	s.hub.detach(s.roomID, s)
	s.mgr.RemovePlayer(ctx, s.playerID)
	s.log.Info().Str("player_id", s.playerID).Str("room_id", s.roomID).Msg("player left")
	s.playerID = ""
	s.roomID = ""
}

func (s *session) send(msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		s.log.Error().Err(err).Str("msg_type", msgType).Msg("encode message")
		return
	}
	s.writeMessage(data)
}

func (s *session) sendError(message string) {
	s.send(msgError, errorPayload{Message: message})
}

// writeMessage is the hub-facing outbound half. Failed writes are left to
// the read loop to notice; the close error surfaces there. It runs on hub
// and scheduler goroutines, so it must not read the identity fields the
// read loop mutates.
func (s *session) writeMessage(data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Debug().Err(err).Msg("write failed")
	}
}
