package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
	"go.uber.org/zap"
)

// Notification carries the outcome of a game transition to UI/websocket
// clients. Recipient is empty for broadcasts; private effects are delivered
// in a separate notification addressed to their recipient only.
type Notification struct {
	Type      string
	RoomID    string
	Recipient string
	Timestamp time.Time
	Effects   []rules.Effect
}

// Notification types emitted by the engine.
const (
	NotifyGameStarted  = "GAME_STARTED"
	NotifyGameUpdate   = "GAME_UPDATE"
	NotifyGameFinished = "GAME_FINISHED"
)

// NotificationHandler is a function that handles game notifications.
type NotificationHandler func(notification Notification)

// gameSession holds one running game. All transitions for a session go
// through its mutex, so the pure rules layer never sees concurrent access.
type gameSession struct {
	mu        sync.Mutex
	state     rules.GameState
	rng       *rand.Rand
	seq       int
	startedAt time.Time
}

// CoupEngine hosts the rule engine for every active room: it serializes
// transitions per room, records replay snapshots, and fans out effects to
// the registered notification handler.
type CoupEngine struct {
	logger   *zap.Logger
	recorder *ReplayRecorder

	mu      sync.RWMutex
	games   map[string]*gameSession
	handler NotificationHandler
}

// NewCoupEngine creates a new engine. The recorder may be nil to disable
// replay capture.
func NewCoupEngine(logger *zap.Logger, recorder *ReplayRecorder) *CoupEngine {
	return &CoupEngine{
		logger:   logger,
		recorder: recorder,
		games:    make(map[string]*gameSession),
	}
}

// SetNotificationHandler sets the handler for game notifications.
// This allows external systems (UI, websockets) to receive real-time updates.
func (e *CoupEngine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// emitNotification sends a notification to the registered handler. The
// handler runs in its own goroutine so it may safely call back into the
// engine (for example to build a view).
func (e *CoupEngine) emitNotification(n Notification) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()

	if handler != nil {
		go handler(n)
	}
}

// publishEffects splits a transition's effects into one broadcast
// notification plus one private notification per recipient.
func (e *CoupEngine) publishEffects(notifyType, roomID string, effects []rules.Effect) {
	now := time.Now()
	var public []rules.Effect
	private := make(map[string][]rules.Effect)

	for _, effect := range effects {
		if effect.Visibility == rules.VisibilityPrivate {
			private[effect.Recipient] = append(private[effect.Recipient], effect)
			continue
		}
		public = append(public, effect)
	}

	if len(public) > 0 {
		e.emitNotification(Notification{
			Type:      notifyType,
			RoomID:    roomID,
			Timestamp: now,
			Effects:   public,
		})
	}
	for recipient, effs := range private {
		e.emitNotification(Notification{
			Type:      notifyType,
			RoomID:    roomID,
			Recipient: recipient,
			Timestamp: now,
			Effects:   effs,
		})
	}
}

// StartGame deals a new game for the room. The seed makes deals
// reproducible in tests; pass time-based entropy in production.
func (e *CoupEngine) StartGame(roomID string, seats []rules.PlayerSeat, seed int64) error {
	if roomID == "" {
		return fmt.Errorf("roomID is required")
	}

	rng := rand.New(rand.NewSource(seed))
	state, err := rules.NewGame(roomID, seats, rng)
	if err != nil {
		return err
	}

	session := &gameSession{
		state:     state,
		rng:       rng,
		startedAt: time.Now(),
	}

	e.mu.Lock()
	if _, exists := e.games[roomID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("game %s already exists", roomID)
	}
	e.games[roomID] = session
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.StartRecording(roomID)
		e.recorder.RecordState(roomID, newSnapshot(roomID, 0, state, nil))
	}

	e.publishEffects(NotifyGameStarted, roomID, []rules.Effect{{
		Type:       rules.EffectActionResolved,
		Visibility: rules.VisibilityPublic,
		Message:    "game started",
	}})

	e.logger.Info("game started",
		zap.String("room_id", roomID),
		zap.Int("players", len(seats)),
	)
	return nil
}

func (e *CoupEngine) session(roomID string) (*gameSession, error) {
	e.mu.RLock()
	session, exists := e.games[roomID]
	e.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("game %s not found", roomID)
	}
	return session, nil
}

// transition applies a pure rules operation under the session lock,
// records the resulting snapshot, and publishes the effects.
func (e *CoupEngine) transition(roomID string, op func(rules.GameState, *rand.Rand) (rules.GameState, []rules.Effect, error)) error {
	session, err := e.session(roomID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	next, effects, err := op(session.state, session.rng)
	if err != nil {
		session.mu.Unlock()
		if rej, ok := rules.AsRejection(err); ok {
			e.logger.Debug("transition rejected",
				zap.String("room_id", roomID),
				zap.String("code", string(rej.Code)),
				zap.String("detail", rej.Detail),
			)
		} else {
			e.logger.Error("transition failed",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
		return err
	}
	session.state = next
	session.seq++
	seq := session.seq
	finished := next.Status == rules.StatusFinished
	winner := next.Winner
	session.mu.Unlock()

	if e.recorder != nil {
		e.recorder.RecordState(roomID, newSnapshot(roomID, seq, next, effects))
	}

	notifyType := NotifyGameUpdate
	if finished {
		notifyType = NotifyGameFinished
	}
	e.publishEffects(notifyType, roomID, effects)

	if finished {
		if e.recorder != nil {
			e.recorder.StopRecording(roomID)
			if err := e.recorder.SaveReplay(roomID); err != nil {
				e.logger.Warn("failed to save replay",
					zap.String("room_id", roomID),
					zap.Error(err),
				)
			}
		}
		e.logger.Info("game finished",
			zap.String("room_id", roomID),
			zap.String("winner", winner),
		)
	}
	return nil
}

// DeclareAction starts a turn action for the acting player.
func (e *CoupEngine) DeclareAction(roomID, playerID string, action rules.ActionType, targetID string) error {
	return e.transition(roomID, func(state rules.GameState, rng *rand.Rand) (rules.GameState, []rules.Effect, error) {
		return rules.DeclareAction(state, playerID, action, targetID, rng)
	})
}

// Respond records a pass, block, or challenge from a responder.
func (e *CoupEngine) Respond(roomID, playerID string, response rules.ResponseKind, claimedRole rules.Role) error {
	return e.transition(roomID, func(state rules.GameState, rng *rand.Rand) (rules.GameState, []rules.Effect, error) {
		return rules.Respond(state, playerID, response, claimedRole, rng)
	})
}

// ChooseCards settles a pending card-loss reveal or exchange selection.
func (e *CoupEngine) ChooseCards(roomID, playerID string, indices []int) error {
	return e.transition(roomID, func(state rules.GameState, rng *rand.Rand) (rules.GameState, []rules.Effect, error) {
		return rules.ChooseCards(state, playerID, indices, rng)
	})
}

// ExpireWindow force-closes the open response or choice window. The timeout
// scheduler calls this when a window's deadline passes.
func (e *CoupEngine) ExpireWindow(roomID string) error {
	return e.transition(roomID, func(state rules.GameState, rng *rand.Rand) (rules.GameState, []rules.Effect, error) {
		return rules.ExpireWindow(state, rng)
	})
}

// HandleDisconnect marks the player disconnected and applies the auto-pass
// policy for anything they owed.
func (e *CoupEngine) HandleDisconnect(roomID, playerID string) error {
	return e.transition(roomID, func(state rules.GameState, rng *rand.Rand) (rules.GameState, []rules.Effect, error) {
		return rules.MarkDisconnected(state, playerID, rng)
	})
}

// HandleReconnect marks the player connected again.
func (e *CoupEngine) HandleReconnect(roomID, playerID string) error {
	session, err := e.session(roomID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	next, err := rules.MarkConnected(session.state, playerID)
	if err != nil {
		session.mu.Unlock()
		return err
	}
	session.state = next
	session.mu.Unlock()

	e.logger.Debug("player reconnected",
		zap.String("room_id", roomID),
		zap.String("player_id", playerID),
	)
	return nil
}

// ViewFor returns the game as seen by the given player. An empty playerID
// yields the spectator view with every hidden card redacted.
func (e *CoupEngine) ViewFor(roomID, playerID string) (*GameView, error) {
	session, err := e.session(roomID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	view := buildView(&session.state, playerID, session.seq)
	view.StartedAt = session.startedAt
	return view, nil
}

// Snapshot returns a replayable copy of the current state.
func (e *CoupEngine) Snapshot(roomID string) (*StateSnapshot, error) {
	session, err := e.session(roomID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	return newSnapshot(roomID, session.seq, session.state, nil), nil
}

// Checksum returns the deterministic hash of the room's current state.
func (e *CoupEngine) Checksum(roomID string) (string, error) {
	snapshot, err := e.Snapshot(roomID)
	if err != nil {
		return "", err
	}
	checksum, err := snapshot.ComputeChecksum()
	if err != nil {
		return "", err
	}
	return checksum.Hash, nil
}

// GameExists reports whether a game is running for the room.
func (e *CoupEngine) GameExists(roomID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exists := e.games[roomID]
	return exists
}

// EndGame removes the room's game. Pending replay data is dropped unless the
// game finished and was already saved.
func (e *CoupEngine) EndGame(roomID string) {
	e.mu.Lock()
	delete(e.games, roomID)
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.ClearReplay(roomID)
	}
	e.logger.Info("game removed", zap.String("room_id", roomID))
}

// RestoreGame reinstates a game from a stored snapshot, for example after a
// server restart. The sequence counter continues from the snapshot.
func (e *CoupEngine) RestoreGame(snapshot *StateSnapshot, seed int64) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}

	session := &gameSession{
		state:     snapshot.State,
		rng:       rand.New(rand.NewSource(seed)),
		seq:       snapshot.Seq,
		startedAt: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.games[snapshot.RoomID]; exists {
		return fmt.Errorf("game %s already exists", snapshot.RoomID)
	}
	e.games[snapshot.RoomID] = session

	e.logger.Info("game restored",
		zap.String("room_id", snapshot.RoomID),
		zap.Int("seq", snapshot.Seq),
	)
	return nil
}
