package server

import (
	"encoding/json"
	"time"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
)

// Client intent types.
const (
	msgCreateRoom  = "create_room"
	msgJoinRoom    = "join_room"
	msgLeaveRoom   = "leave_room"
	msgStartGame   = "start_game"
	msgRestartGame = "restart_game"
	msgAction      = "action"
	msgRespond     = "respond"
	msgChooseCards = "choose_cards"
	msgGetView     = "get_view"
)

// Server message types.
const (
	msgError        = "error"
	msgRoomState    = "room_state"
	msgGameStarted  = "game_started"
	msgGameUpdate   = "game_update"
	msgGameFinished = "game_finished"
	msgView         = "view"
)

// clientMessage is the envelope for every intent a player sends over the
// websocket.
type clientMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Action   string `json:"action,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	Response string `json:"response,omitempty"`
	Role     string `json:"role,omitempty"`
	Indices  []int  `json:"indices,omitempty"`
}

// memberPayload is one seated player in a room_state message.
type memberPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

// roomPayload describes the lobby a player is in.
type roomPayload struct {
	RoomID  string          `json:"roomId"`
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Members []memberPayload `json:"members"`
}

// serverMessage is the envelope for everything the server pushes.
type serverMessage struct {
	Type      string         `json:"type"`
	RoomID    string         `json:"roomId,omitempty"`
	Room      *roomPayload   `json:"room,omitempty"`
	View      *game.GameView `json:"view,omitempty"`
	Effects   []rules.Effect `json:"effects,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func encodeMessage(msg serverMessage) []byte {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		// serverMessage contains only marshalable fields
		return []byte(`{"type":"error","code":"INTERNAL","message":"encoding failed"}`)
	}
	return data
}

func errorMessage(code, message string) []byte {
	return encodeMessage(serverMessage{Type: msgError, Code: code, Message: message})
}
