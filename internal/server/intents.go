package server

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/room"
)

// errSessionExpired is reported when the session lease lapsed under an
// open connection; the client must reconnect.
var errSessionExpired = errors.New("session expired, reconnect required")

// dispatch routes one decoded intent to the room manager or the game
// engine and reports failures back on the sending connection.
func (s *Server) dispatch(c *client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorMessage("BAD_MESSAGE", "message is not valid JSON"))
		return
	}
	s.sessions.Touch(c.session.ID)

	var err error
	switch msg.Type {
	case msgCreateRoom:
		err = s.createRoom(c)
	case msgJoinRoom:
		err = s.joinRoom(c, msg.Code)
	case msgLeaveRoom:
		err = s.leaveRoom(c)
	case msgStartGame:
		err = s.startGame(c)
	case msgRestartGame:
		err = s.restartGame(c)
	case msgAction:
		err = s.engine.DeclareAction(c.session.RoomID, c.session.UserID,
			rules.ActionType(msg.Action), msg.TargetID)
	case msgRespond:
		err = s.engine.Respond(c.session.RoomID, c.session.UserID,
			rules.ResponseKind(msg.Response), rules.Role(msg.Role))
	case msgChooseCards:
		err = s.engine.ChooseCards(c.session.RoomID, c.session.UserID, msg.Indices)
	case msgGetView:
		s.sendView(c, c.session.RoomID)
	default:
		c.enqueue(errorMessage("UNKNOWN_INTENT", "unsupported message type: "+msg.Type))
		return
	}

	if err != nil {
		c.enqueue(intentError(err))
	}
}

// intentError maps engine and room errors onto the wire error format.
func intentError(err error) []byte {
	if rejection, ok := rules.AsRejection(err); ok {
		return errorMessage(string(rejection.Code), rejection.Detail)
	}
	return errorMessage("ROOM_ERROR", err.Error())
}

func (s *Server) createRoom(c *client) error {
	if _, ok := s.rooms.RoomFor(c.session.UserID); ok {
		return room.ErrAlreadyInRoom
	}
	r, err := s.rooms.Create(c.session.UserID, c.session.Username)
	if err != nil {
		return err
	}
	if !s.sessions.BindRoom(c.session.ID, r.ID) {
		s.rooms.Leave(r.ID, c.session.UserID)
		return errSessionExpired
	}
	s.broadcastRoomState(r)
	return nil
}

func (s *Server) joinRoom(c *client, code string) error {
	r, err := s.rooms.Join(code, c.session.UserID, c.session.Username)
	if err != nil {
		return err
	}
	if !s.sessions.BindRoom(c.session.ID, r.ID) {
		s.rooms.Leave(r.ID, c.session.UserID)
		return errSessionExpired
	}
	s.broadcastRoomState(r)
	return nil
}

func (s *Server) leaveRoom(c *client) error {
	roomID := c.session.RoomID
	if roomID == "" {
		return room.ErrNotInRoom
	}
	if err := s.rooms.Leave(roomID, c.session.UserID); err != nil {
		return err
	}
	s.sessions.BindRoom(c.session.ID, "")
	if s.engine.GameExists(roomID) {
		if err := s.engine.HandleDisconnect(roomID, c.session.UserID); err != nil {
			s.logger.Debug("leave during game ignored", zap.Error(err))
		}
	}
	if r, err := s.rooms.Get(roomID); err == nil {
		s.broadcastRoomState(r)
	}
	return nil
}

func (s *Server) startGame(c *client) error {
	roomID := c.session.RoomID
	if roomID == "" {
		return room.ErrNotInRoom
	}
	seats, err := s.rooms.Start(roomID, c.session.UserID)
	if err != nil {
		return err
	}
	if err := s.engine.StartGame(roomID, seats, time.Now().UnixNano()); err != nil {
		// Return the lobby to a startable state rather than stranding it.
		if finishErr := s.rooms.Finish(roomID); finishErr == nil {
			if r, restartErr := s.rooms.Restart(roomID, c.session.UserID); restartErr == nil {
				s.broadcastRoomState(r)
			}
		}
		return err
	}
	s.rescheduleTimers(roomID)
	return nil
}

func (s *Server) restartGame(c *client) error {
	roomID := c.session.RoomID
	if roomID == "" {
		return room.ErrNotInRoom
	}
	r, err := s.rooms.Restart(roomID, c.session.UserID)
	if err != nil {
		return err
	}
	s.engine.EndGame(roomID)
	s.broadcastRoomState(r)
	return nil
}
