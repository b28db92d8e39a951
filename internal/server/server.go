package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/auth"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/config"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/repository"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/room"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/session"
)

// UserStore is the slice of the user repository the server needs.
type UserStore interface {
	Create(ctx context.Context, id, username, passwordHash string) (*repository.User, error)
	GetByUsername(ctx context.Context, username string) (*repository.User, error)
	GetByID(ctx context.Context, id string) (*repository.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// GameStore persists snapshots so a running game survives a server
// restart. A nil store disables persistence.
type GameStore interface {
	SaveSnapshot(ctx context.Context, roomID string, seq uint64, data []byte) error
	LoadLatest(ctx context.Context, roomID string) (seq uint64, data []byte, updatedAt time.Time, err error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// Server terminates websocket connections and routes player intents to
// the room manager and the game engine.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	users     UserStore
	games     GameStore
	sessions  *session.Manager
	tokens    *auth.TokenStore
	rooms     *room.Manager
	engine    *game.CoupEngine
	scheduler *game.TimeoutScheduler

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client // by user ID
}

func NewServer(
	cfg *config.Config,
	users UserStore,
	games GameStore,
	sessions *session.Manager,
	tokens *auth.TokenStore,
	rooms *room.Manager,
	engine *game.CoupEngine,
	scheduler *game.TimeoutScheduler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		users:     users,
		games:     games,
		sessions:  sessions,
		tokens:    tokens,
		rooms:     rooms,
		engine:    engine,
		scheduler: scheduler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The game client is served from a different origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	engine.SetNotificationHandler(s.handleNotification)
	return s
}

// Handler returns the HTTP routes: REST for account management, one
// websocket endpoint for everything in-game.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/password", s.handleChangePassword)
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeJSONError(w, http.StatusBadRequest, "username is required")
		return
	}

	hash, err := auth.HashPassword(req.Password, s.cfg.Auth.BcryptCost)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.users.Create(r.Context(), uuid.New().String(), req.Username, hash)
	if errors.Is(err, repository.ErrUsernameTaken) {
		writeJSONError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		s.logger.Error("user registration failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token := s.tokens.Issue(u.ID)
	writeJSON(w, http.StatusCreated, authResponse{UserID: u.ID, Username: u.Username, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.logger.Warn("login failed", zap.String("username", req.Username))
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := s.tokens.Issue(u.ID)
	writeJSON(w, http.StatusOK, authResponse{UserID: u.ID, Username: u.Username, Token: token})
}

type changePasswordRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword, s.cfg.Auth.BcryptCost)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.users.UpdatePassword(r.Context(), u.ID, hash); err != nil {
		s.logger.Error("password update failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "password update failed")
		return
	}
	// Old logins stop working immediately.
	s.tokens.RevokeUser(u.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebsocket authenticates the token, upgrades the connection and
// starts the read/write pumps.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, ok := s.tokens.Validate(token)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	u, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	sess, err := s.sessions.Create(userID, u.Username)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		s.sessions.Remove(sess.ID)
		return
	}

	c := newClient(s, conn, sess)
	s.register(c)

	go c.writePump()
	go c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	if prev, ok := s.clients[c.session.UserID]; ok {
		prev.conn.Close()
	}
	s.clients[c.session.UserID] = c
	s.mu.Unlock()

	s.logger.Info("client connected",
		zap.String("user_id", c.session.UserID),
		zap.String("username", c.session.Username))

	// Reconnecting into a running game resumes the seat.
	if r, ok := s.rooms.RoomFor(c.session.UserID); ok {
		if !s.sessions.BindRoom(c.session.ID, r.ID) {
			s.logger.Warn("room bind failed for fresh session",
				zap.String("session_id", c.session.ID),
				zap.String("room_id", r.ID))
		}
		if !s.engine.GameExists(r.ID) && r.Status == room.StatusPlaying {
			s.restoreGame(r.ID)
		}
		if s.engine.GameExists(r.ID) {
			if err := s.engine.HandleReconnect(r.ID, c.session.UserID); err != nil {
				s.logger.Debug("reconnect ignored", zap.Error(err))
			}
			s.sendView(c, r.ID)
		} else {
			c.enqueue(encodeMessage(serverMessage{Type: msgRoomState, RoomID: r.ID, Room: buildRoomPayload(r)}))
		}
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if cur, ok := s.clients[c.session.UserID]; !ok || cur != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.session.UserID)
	s.mu.Unlock()

	s.logger.Info("client disconnected", zap.String("user_id", c.session.UserID))
	s.sessions.Remove(c.session.ID)

	if roomID := c.session.RoomID; roomID != "" && s.engine.GameExists(roomID) {
		if err := s.engine.HandleDisconnect(roomID, c.session.UserID); err != nil {
			s.logger.Debug("disconnect ignored", zap.Error(err))
		}
	}
}

func (s *Server) clientFor(userID string) (*client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[userID]
	return c, ok
}

// handleNotification fans an engine notification out to the connected
// players of the room, attaching each viewer's redacted view.
func (s *Server) handleNotification(n game.Notification) {
	msgType := msgGameUpdate
	switch n.Type {
	case game.NotifyGameStarted:
		msgType = msgGameStarted
	case game.NotifyGameFinished:
		msgType = msgGameFinished
	}

	if n.Recipient != "" {
		c, ok := s.clientFor(n.Recipient)
		if !ok {
			return
		}
		view, err := s.engine.ViewFor(n.RoomID, n.Recipient)
		if err != nil {
			return
		}
		c.enqueue(encodeMessage(serverMessage{Type: msgType, RoomID: n.RoomID, View: view, Effects: n.Effects}))
		return
	}

	r, err := s.rooms.Get(n.RoomID)
	if err != nil {
		return
	}
	for _, member := range r.Members {
		c, ok := s.clientFor(member.UserID)
		if !ok {
			continue
		}
		view, err := s.engine.ViewFor(n.RoomID, member.UserID)
		if err != nil {
			continue
		}
		c.enqueue(encodeMessage(serverMessage{Type: msgType, RoomID: n.RoomID, View: view, Effects: n.Effects}))
	}

	switch n.Type {
	case game.NotifyGameFinished:
		s.scheduler.Cancel(n.RoomID)
		if err := s.rooms.Finish(n.RoomID); err != nil {
			s.logger.Debug("finish on closed room", zap.Error(err))
		}
		s.dropPersistedGame(n.RoomID)
	default:
		s.rescheduleTimers(n.RoomID)
		s.persistGame(n.RoomID)
	}
}

// persistGame writes the latest snapshot through the game store so the
// room can be restored after a restart.
func (s *Server) persistGame(roomID string) {
	if s.games == nil {
		return
	}
	snap, err := s.engine.Snapshot(roomID)
	if err != nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("snapshot encoding failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.games.SaveSnapshot(ctx, roomID, uint64(snap.Seq), data); err != nil {
		s.logger.Error("snapshot persist failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (s *Server) dropPersistedGame(roomID string) {
	if s.games == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.games.DeleteRoom(ctx, roomID); err != nil {
		s.logger.Debug("snapshot delete failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// restoreGame rebuilds an engine session from the persisted snapshot.
func (s *Server) restoreGame(roomID string) bool {
	if s.games == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, _, err := s.games.LoadLatest(ctx, roomID)
	if err != nil {
		return false
	}
	var snap game.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("snapshot decoding failed", zap.String("room_id", roomID), zap.Error(err))
		return false
	}
	if err := s.engine.RestoreGame(&snap, time.Now().UnixNano()); err != nil {
		s.logger.Error("game restore failed", zap.String("room_id", roomID), zap.Error(err))
		return false
	}
	s.logger.Info("game restored from snapshot",
		zap.String("room_id", roomID),
		zap.Int("seq", snap.Seq))
	s.rescheduleTimers(roomID)
	return true
}

// rescheduleTimers arms the room's single timer: a response-window
// expiry while an action is pending, a turn timeout otherwise.
func (s *Server) rescheduleTimers(roomID string) {
	snap, err := s.engine.Snapshot(roomID)
	if err != nil {
		s.scheduler.Cancel(roomID)
		return
	}
	switch {
	case snap.State.Pending != nil:
		s.scheduler.Schedule(roomID, s.cfg.Server.ResponseWindow, func() {
			if err := s.engine.ExpireWindow(roomID); err != nil {
				s.logger.Debug("window expiry ignored", zap.String("room_id", roomID), zap.Error(err))
			}
		})
	case snap.State.Status == rules.StatusActive:
		current := snap.State.CurrentPlayer()
		if current == nil {
			s.scheduler.Cancel(roomID)
			return
		}
		playerID := current.ID
		s.scheduler.Schedule(roomID, s.cfg.Server.TurnTimeout, func() {
			s.forcePlay(roomID, playerID)
		})
	default:
		s.scheduler.Cancel(roomID)
	}
}

// forcePlay plays a stalled turn on the player's behalf: income, or a
// coup against the next opponent when income is no longer legal.
func (s *Server) forcePlay(roomID, playerID string) {
	err := s.engine.DeclareAction(roomID, playerID, rules.ActionIncome, "")
	if err == nil {
		return
	}
	snap, snapErr := s.engine.Snapshot(roomID)
	if snapErr != nil {
		return
	}
	for _, candidate := range snap.State.AlivePlayers() {
		if candidate == playerID {
			continue
		}
		if err := s.engine.DeclareAction(roomID, playerID, rules.ActionCoup, candidate); err == nil {
			return
		}
	}
	s.logger.Warn("turn timeout could not force a play",
		zap.String("room_id", roomID),
		zap.String("player_id", playerID),
		zap.Error(err))
}

func (s *Server) sendView(c *client, roomID string) {
	view, err := s.engine.ViewFor(roomID, c.session.UserID)
	if err != nil {
		return
	}
	c.enqueue(encodeMessage(serverMessage{Type: msgView, RoomID: roomID, View: view}))
}

// broadcastRoomState pushes the lobby roster to every seated player.
func (s *Server) broadcastRoomState(r *room.Room) {
	payload := buildRoomPayload(r)
	for _, member := range r.Members {
		if c, ok := s.clientFor(member.UserID); ok {
			c.enqueue(encodeMessage(serverMessage{Type: msgRoomState, RoomID: r.ID, Room: payload}))
		}
	}
}

func buildRoomPayload(r *room.Room) *roomPayload {
	members := make([]memberPayload, len(r.Members))
	for i, m := range r.Members {
		members[i] = memberPayload{
			UserID:   m.UserID,
			Username: m.Username,
			IsHost:   m.UserID == r.HostID,
		}
	}
	return &roomPayload{
		RoomID:  r.ID,
		Code:    r.Code,
		Status:  string(r.Status),
		Members: members,
	}
}

// Shutdown closes every client connection.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
}
