package server

import (
	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/pitchside/pitchside/game"
)

// Envelope is the wire framing for both directions: a type tag and an
// opaque payload decoded per tag.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types. Dispatch is a closed switch over these; anything
// else is logged and dropped.
const (
	msgJoin       = "join"
	msgCreateRoom = "createRoom"
	msgJoinRoom   = "joinRoom"
	msgUpdate     = "update"
	msgAction     = "action"
	msgControl    = "control"
	msgLeave      = "leave"
)

// Outbound message types.
const (
	msgJoinAck          = "joinAck"
	msgCreateRoomAck    = "createRoomAck"
	msgJoinRoomAck      = "joinRoomAck"
	msgPlayerJoined     = "playerJoined"
	msgMatchingComplete = "matchingComplete"
	msgGameStart        = "gameStart"
	msgGameEnd          = "gameEnd"
	msgGameRestart      = "gameRestart"
	msgTick             = "tick"
	msgGoalScored       = "goalScored"
	msgBallKicked       = "ballKicked"
	msgError            = "error"
)

// Client payloads. Pointer fields distinguish absent from zero so partial
// update patches survive decoding.
type (
	joinPayload struct {
		Name string `json:"name"`
	}
	createRoomPayload struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"maxPlayers"`
	}
	joinRoomPayload struct {
		Name   string `json:"name"`
		RoomID string `json:"roomId"`
	}
	updatePayload struct {
		X         *float64 `json:"x"`
		Z         *float64 `json:"z"`
		Direction *float64 `json:"direction"`
		State     *string  `json:"state"`
	}
	actionPayload struct {
		Action    string  `json:"action"`
		Direction float64 `json:"direction"`
	}
	controlPayload struct {
		Command string `json:"command"`
	}
)

// Server payloads. Acks flatten the room snapshot next to the identity
// fields so clients read one object.
type (
	joinAckPayload struct {
		PlayerID string `json:"playerId"`
		game.RoomSnapshot
	}
	createRoomAckPayload struct {
		PlayerID string `json:"playerId"`
		RoomCode string `json:"roomCode"`
		game.RoomSnapshot
	}
	gameEndPayload struct {
		game.RoomSnapshot
		MatchID int64  `json:"matchId"`
		Winner  string `json:"winner"`
	}
	goalScoredPayload struct {
		Team      game.Team         `json:"team"`
		Score     game.Score        `json:"score"`
		RoomState game.RoomSnapshot `json:"roomState"`
	}
	ballPos struct {
		X float64 `json:"x"`
		Z float64 `json:"z"`
	}
	ballKickedPayload struct {
		PlayerID  string  `json:"playerId"`
		Direction float64 `json:"direction"`
		BallPos   ballPos `json:"ballPos"`
	}
	errorPayload struct {
		Message string `json:"message"`
	}
)

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, eris.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return Envelope{}, eris.New("envelope missing type")
	}
	return env, nil
}

func decodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, eris.Wrapf(err, "decode %s payload", env.Type)
	}
	return payload, nil
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "encode %s payload", msgType)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: body})
}
