package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/auth"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/config"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/repository"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/room"
	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/session"
)

// memoryUserStore keeps accounts in a map so tests run without postgres.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*repository.User // by username
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*repository.User)}
}

func (s *memoryUserStore) Create(_ context.Context, id, username, passwordHash string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, repository.ErrUsernameTaken
	}
	u := &repository.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[username] = u
	return u, nil
}

func (s *memoryUserStore) GetByUsername(_ context.Context, username string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return repository.ErrUserNotFound
}

// memoryGameStore keeps snapshots in a map.
type memoryGameStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

func newMemoryGameStore() *memoryGameStore {
	return &memoryGameStore{snapshots: make(map[string][]byte)}
}

func (s *memoryGameStore) SaveSnapshot(_ context.Context, roomID string, _ uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[roomID] = data
	return nil
}

func (s *memoryGameStore) LoadLatest(_ context.Context, roomID string) (uint64, []byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[roomID]
	if !ok {
		return 0, nil, time.Time{}, repository.ErrSnapshotNotFound
	}
	return 0, data, time.Now(), nil
}

func (s *memoryGameStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, roomID)
	return nil
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	tokens *auth.TokenStore
	users  *memoryUserStore
	games  *memoryGameStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ResponseWindow: 5 * time.Second,
			TurnTimeout:    30 * time.Second,
		},
		Auth: config.AuthConfig{BcryptCost: 4, LoginTokenTTL: time.Hour},
	}

	users := newMemoryUserStore()
	games := newMemoryGameStore()
	sessions := session.NewManager(time.Hour, logger)
	tokens := auth.NewTokenStore(cfg.Auth.LoginTokenTTL)
	rooms := room.NewManager(logger)
	recorder := game.NewReplayRecorder(logger, t.TempDir())
	engine := game.NewCoupEngine(logger, recorder)
	scheduler := game.NewTimeoutScheduler(logger)

	srv := NewServer(cfg, users, games, sessions, tokens, rooms, engine, scheduler, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		scheduler.Stop()
		ts.Close()
	})
	return &testEnv{server: srv, http: ts, tokens: tokens, users: users, games: games}
}

func (env *testEnv) registerUser(t *testing.T, username, password string) authResponse {
	t.Helper()
	body, _ := json.Marshal(credentialsRequest{Username: username, Password: password})
	resp, err := http.Post(env.http.URL+"/api/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// wsClient is a connected test player with a background reader.
type wsClient struct {
	conn *websocket.Conn
	msgs chan serverMessage
}

func (env *testEnv) connect(t *testing.T, token string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{conn: conn, msgs: make(chan serverMessage, 64)}
	go func() {
		for {
			var msg serverMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(c.msgs)
				return
			}
			c.msgs <- msg
		}
	}()
	return c
}

func (c *wsClient) sendIntent(t *testing.T, msg clientMessage) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(msg))
}

// waitFor reads messages until one of the wanted type arrives.
func (c *wsClient) waitFor(t *testing.T, msgType string) serverMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-c.msgs:
			if !ok {
				t.Fatalf("connection closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("register issues a token", func(t *testing.T) {
		out := env.registerUser(t, "alice", "hunter22")
		assert.NotEmpty(t, out.UserID)
		assert.NotEmpty(t, out.Token)
		assert.Equal(t, "alice", out.Username)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		body, _ := json.Marshal(credentialsRequest{Username: "alice", Password: "other66"})
		resp, err := http.Post(env.http.URL+"/api/register", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("login with correct password", func(t *testing.T) {
		body, _ := json.Marshal(credentialsRequest{Username: "alice", Password: "hunter22"})
		resp, err := http.Post(env.http.URL+"/api/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out authResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.NotEmpty(t, out.Token)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		body, _ := json.Marshal(credentialsRequest{Username: "alice", Password: "wrong66"})
		resp, err := http.Post(env.http.URL+"/api/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("change password revokes old tokens", func(t *testing.T) {
		body, _ := json.Marshal(changePasswordRequest{Username: "alice", Password: "hunter22", NewPassword: "hunter33"})
		resp, err := http.Post(env.http.URL+"/api/password", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		login, _ := json.Marshal(credentialsRequest{Username: "alice", Password: "hunter33"})
		loginResp, err := http.Post(env.http.URL+"/api/login", "application/json", bytes.NewReader(login))
		require.NoError(t, err)
		defer loginResp.Body.Close()
		assert.Equal(t, http.StatusOK, loginResp.StatusCode)

		old, _ := json.Marshal(credentialsRequest{Username: "alice", Password: "hunter22"})
		oldResp, err := http.Post(env.http.URL+"/api/login", "application/json", bytes.NewReader(old))
		require.NoError(t, err)
		defer oldResp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, oldResp.StatusCode)
	})

	t.Run("short password rejected", func(t *testing.T) {
		body, _ := json.Marshal(credentialsRequest{Username: "bob", Password: "ab"})
		resp, err := http.Post(env.http.URL+"/api/register", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWebsocketAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("rejects missing token", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects bogus token", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?token=" + uuid.New().String()
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts valid token", func(t *testing.T) {
		out := env.registerUser(t, "carol", "secret99")
		c := env.connect(t, out.Token)
		c.sendIntent(t, clientMessage{Type: msgCreateRoom})
		msg := c.waitFor(t, msgRoomState)
		require.NotNil(t, msg.Room)
		assert.Equal(t, "carol", msg.Room.Members[0].Username)
	})
}

func TestRoomFlow(t *testing.T) {
	env := newTestEnv(t)
	host := env.registerUser(t, "alice", "hunter22")
	guest := env.registerUser(t, "bob", "secret99")

	hostWS := env.connect(t, host.Token)
	guestWS := env.connect(t, guest.Token)

	hostWS.sendIntent(t, clientMessage{Type: msgCreateRoom})
	created := hostWS.waitFor(t, msgRoomState)
	require.NotNil(t, created.Room)
	code := created.Room.Code

	t.Run("join broadcasts the roster", func(t *testing.T) {
		guestWS.sendIntent(t, clientMessage{Type: msgJoinRoom, Code: code})
		joined := guestWS.waitFor(t, msgRoomState)
		require.Len(t, joined.Room.Members, 2)
		assert.True(t, joined.Room.Members[0].IsHost)

		hostSide := hostWS.waitFor(t, msgRoomState)
		require.Len(t, hostSide.Room.Members, 2)
	})

	t.Run("join with bad code fails", func(t *testing.T) {
		guestWS.sendIntent(t, clientMessage{Type: msgJoinRoom, Code: "no-such-code"})
		msg := guestWS.waitFor(t, msgError)
		assert.Equal(t, "ROOM_ERROR", msg.Code)
	})

	t.Run("guest cannot start", func(t *testing.T) {
		guestWS.sendIntent(t, clientMessage{Type: msgStartGame})
		msg := guestWS.waitFor(t, msgError)
		assert.Equal(t, "ROOM_ERROR", msg.Code)
	})

	t.Run("host starts and both get hands", func(t *testing.T) {
		hostWS.sendIntent(t, clientMessage{Type: msgStartGame})

		hostStart := hostWS.waitFor(t, msgGameStarted)
		require.NotNil(t, hostStart.View)
		hostSeat := findSeat(t, hostStart, host.UserID)
		assert.Len(t, hostSeat.Hand, 2)

		guestStart := guestWS.waitFor(t, msgGameStarted)
		guestSeat := findSeat(t, guestStart, host.UserID)
		assert.Empty(t, guestSeat.Hand, "opponent hands must stay hidden")
		assert.Equal(t, 2, guestSeat.HiddenCards)
	})

	t.Run("income round trips through the engine", func(t *testing.T) {
		view := currentView(t, hostWS)
		actor, actorWS := hostWS, guestWS
		actorID := host.UserID
		if view.CurrentPlayer != host.UserID {
			actor, actorWS = guestWS, hostWS
			actorID = guest.UserID
		}

		actor.sendIntent(t, clientMessage{Type: msgAction, Action: "income"})
		update := actorWS.waitFor(t, msgGameUpdate)
		require.NotNil(t, update.View)
		assert.Equal(t, 3, findSeatByID(t, update.View, actorID).Coins)
	})

	t.Run("snapshot persisted after each transition", func(t *testing.T) {
		r, ok := env.server.rooms.RoomFor(host.UserID)
		require.True(t, ok)
		assert.Eventually(t, func() bool {
			env.games.mu.Lock()
			defer env.games.mu.Unlock()
			return len(env.games.snapshots[r.ID]) > 0
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("acting out of turn is rejected", func(t *testing.T) {
		view := currentView(t, hostWS)
		idle := hostWS
		if view.CurrentPlayer == host.UserID {
			idle = guestWS
		}
		idle.sendIntent(t, clientMessage{Type: msgAction, Action: "income"})
		msg := idle.waitFor(t, msgError)
		assert.Equal(t, "NOT_YOUR_TURN", msg.Code)
	})
}

func TestExpiredSessionCannotBindRoom(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, "alice", "hunter22")
	ws := env.connect(t, u.Token)

	var sessID string
	require.Eventually(t, func() bool {
		c, ok := env.server.clientFor(u.UserID)
		if ok {
			sessID = c.session.ID
		}
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Simulate the lease sweeper removing the session under the open
	// connection.
	env.server.sessions.Remove(sessID)

	ws.sendIntent(t, clientMessage{Type: msgCreateRoom})
	msg := ws.waitFor(t, msgError)
	assert.Contains(t, msg.Message, "session expired")

	_, inRoom := env.server.rooms.RoomFor(u.UserID)
	assert.False(t, inRoom, "room creation must be rolled back when the bind fails")
}

func currentView(t *testing.T, c *wsClient) *game.GameView {
	t.Helper()
	c.sendIntent(t, clientMessage{Type: msgGetView})
	msg := c.waitFor(t, msgView)
	require.NotNil(t, msg.View)
	return msg.View
}

func findSeat(t *testing.T, msg serverMessage, playerID string) *game.PlayerView {
	t.Helper()
	require.NotNil(t, msg.View)
	return findSeatByID(t, msg.View, playerID)
}

func findSeatByID(t *testing.T, view *game.GameView, playerID string) *game.PlayerView {
	t.Helper()
	for i := range view.Players {
		if view.Players[i].ID == playerID {
			return &view.Players[i]
		}
	}
	t.Fatalf("player %s not in view", playerID)
	return nil
}
