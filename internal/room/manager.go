package room

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
)

// Status tracks a room's lifecycle.
type Status string

const (
	StatusLobby    Status = "LOBBY"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

const (
	minPlayers = 2
	codeLength = 6
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrNotHost       = errors.New("only the host can do that")
	ErrNotInRoom     = errors.New("player is not in the room")
	ErrAlreadyInRoom = errors.New("player is already in the room")
	ErrWrongStatus   = errors.New("room is not in the right state")
	ErrTooFewPlayers = errors.New("not enough players to start")
)

// Member is a seated player in a room.
type Member struct {
	UserID   string
	Username string
	JoinedAt time.Time
}

// Room groups players waiting for or playing a game. The room code is
// the short join handle shown to players; ID is the stable identifier
// used by the engine.
type Room struct {
	ID        string
	Code      string
	HostID    string
	Status    Status
	Members   []Member
	CreatedAt time.Time
}

func (r *Room) memberIndex(userID string) int {
	for i, m := range r.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// Manager owns all rooms. All methods are safe for concurrent use.
type Manager struct {
	logger *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]*Room // by ID
	byCode map[string]*Room
	rng    *rand.Rand
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger,
		rooms:  make(map[string]*Room),
		byCode: make(map[string]*Room),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create opens a new lobby with the given user as host.
func (m *Manager) Create(hostID, hostName string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := &Room{
		ID:        uuid.New().String(),
		Code:      m.nextCodeLocked(),
		HostID:    hostID,
		Status:    StatusLobby,
		Members:   []Member{{UserID: hostID, Username: hostName, JoinedAt: time.Now()}},
		CreatedAt: time.Now(),
	}
	m.rooms[room.ID] = room
	m.byCode[room.Code] = room

	m.logger.Info("room created",
		zap.String("room_id", room.ID),
		zap.String("code", room.Code),
		zap.String("host_id", hostID))
	return room, nil
}

// nextCodeLocked generates an unused 6-digit join code.
func (m *Manager) nextCodeLocked() string {
	for {
		code := fmt.Sprintf("%06d", m.rng.Intn(1000000))
		if _, taken := m.byCode[code]; !taken {
			return code
		}
	}
}

// Join seats a user in the lobby identified by code.
func (m *Manager) Join(code, userID, username string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.byCode[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Status != StatusLobby {
		return nil, ErrWrongStatus
	}
	if room.memberIndex(userID) >= 0 {
		return nil, ErrAlreadyInRoom
	}
	if len(room.Members) >= rules.MaxPlayers {
		return nil, ErrRoomFull
	}

	room.Members = append(room.Members, Member{UserID: userID, Username: username, JoinedAt: time.Now()})
	m.logger.Info("player joined room",
		zap.String("room_id", room.ID),
		zap.String("user_id", userID))
	return room, nil
}

// Leave removes a user from a room. If the host leaves a lobby, the
// next seated player inherits the host role; an emptied room is
// deleted.
func (m *Manager) Leave(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	idx := room.memberIndex(userID)
	if idx < 0 {
		return ErrNotInRoom
	}

	room.Members = append(room.Members[:idx], room.Members[idx+1:]...)
	if len(room.Members) == 0 {
		delete(m.rooms, room.ID)
		delete(m.byCode, room.Code)
		m.logger.Info("room closed", zap.String("room_id", room.ID))
		return nil
	}
	if room.HostID == userID {
		room.HostID = room.Members[0].UserID
		m.logger.Info("host transferred",
			zap.String("room_id", room.ID),
			zap.String("new_host_id", room.HostID))
	}
	return nil
}

// Start transitions a lobby to playing and returns the seats in join
// order. Only the host may start, and at least two players must be
// seated.
func (m *Manager) Start(roomID, userID string) ([]rules.PlayerSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.HostID != userID {
		return nil, ErrNotHost
	}
	if room.Status != StatusLobby {
		return nil, ErrWrongStatus
	}
	if len(room.Members) < minPlayers {
		return nil, ErrTooFewPlayers
	}

	room.Status = StatusPlaying
	seats := make([]rules.PlayerSeat, len(room.Members))
	for i, member := range room.Members {
		seats[i] = rules.PlayerSeat{ID: member.UserID, Name: member.Username}
	}
	m.logger.Info("room started",
		zap.String("room_id", room.ID),
		zap.Int("players", len(seats)))
	return seats, nil
}

// Finish marks a playing room as finished.
func (m *Manager) Finish(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Status = StatusFinished
	return nil
}

// Restart returns a finished room to the lobby so the same group can
// play again. Only the host may restart.
func (m *Manager) Restart(roomID, userID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.HostID != userID {
		return nil, ErrNotHost
	}
	if room.Status != StatusFinished {
		return nil, ErrWrongStatus
	}
	room.Status = StatusLobby
	return room, nil
}

// Get returns a room by ID.
func (m *Manager) Get(roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetByCode returns a room by join code.
func (m *Manager) GetByCode(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.byCode[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RoomFor returns the room a user is currently seated in, if any.
func (m *Manager) RoomFor(userID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, room := range m.rooms {
		if room.memberIndex(userID) >= 0 {
			return room, true
		}
	}
	return nil, false
}

// Count returns the number of open rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
