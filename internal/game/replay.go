package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Replay is the recorded history of one game: every snapshot from the deal
// to the final state, plus a cursor for playback.
type Replay struct {
	RoomID       string
	States       []*StateSnapshot
	CurrentIndex int
	mu           sync.RWMutex
}

func NewReplay(roomID string) *Replay {
	return &Replay{
		RoomID: roomID,
		States: make([]*StateSnapshot, 0),
	}
}

// RecordState appends a snapshot to the replay.
func (r *Replay) RecordState(snapshot *StateSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, snapshot)
}

// Start rewinds playback to the deal.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentIndex = 0
}

// Next returns the snapshot at the cursor and advances it, or nil at the end.
func (r *Replay) Next() *StateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CurrentIndex < len(r.States) {
		state := r.States[r.CurrentIndex]
		r.CurrentIndex++
		return state
	}
	return nil
}

// Previous steps the cursor back and returns the snapshot there, or nil at
// the beginning.
func (r *Replay) Previous() *StateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.States[r.CurrentIndex]
	}
	return nil
}

// Size returns the number of recorded snapshots.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.States)
}

// GetStateAt returns the snapshot at index, or nil when out of range.
func (r *Replay) GetStateAt(index int) *StateSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index >= 0 && index < len(r.States) {
		return r.States[index]
	}
	return nil
}

type replayMetadata struct {
	RoomID     string
	Timestamp  time.Time
	Version    int
	StateCount int
}

// SaveToFile writes the replay as a gzipped gob stream: metadata first,
// then each snapshot in order.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", r.RoomID))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	encoder := gob.NewEncoder(gzipWriter)
	metadata := replayMetadata{
		RoomID:     r.RoomID,
		Timestamp:  time.Now(),
		Version:    1,
		StateCount: len(r.States),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i, state := range r.States {
		if err := encoder.Encode(state); err != nil {
			return fmt.Errorf("failed to encode state %d: %w", i, err)
		}
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, roomID string) (*Replay, error) {
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", roomID))
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)
	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != 1 {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.RoomID)
	for i := 0; i < metadata.StateCount; i++ {
		var state StateSnapshot
		if err := decoder.Decode(&state); err != nil {
			return nil, fmt.Errorf("failed to decode state %d: %w", i, err)
		}
		replay.States = append(replay.States, &state)
	}
	return replay, nil
}

// ReplayRecorder captures snapshots for every recorded room and persists
// finished games to disk.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	enabled map[string]bool
	saveDir string
}

func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		enabled: make(map[string]bool),
		saveDir: saveDir,
	}
}

// StartRecording begins capturing snapshots for a room.
func (rr *ReplayRecorder) StartRecording(roomID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.replays[roomID] = NewReplay(roomID)
	rr.enabled[roomID] = true

	if rr.logger != nil {
		rr.logger.Info("started replay recording", zap.String("room_id", roomID))
	}
}

// StopRecording stops capturing snapshots; the recorded states are kept.
func (rr *ReplayRecorder) StopRecording(roomID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.enabled[roomID] = false
}

// RecordState appends a snapshot if recording is enabled for the room.
func (rr *ReplayRecorder) RecordState(roomID string, snapshot *StateSnapshot) {
	rr.mu.RLock()
	enabled := rr.enabled[roomID]
	replay := rr.replays[roomID]
	rr.mu.RUnlock()

	if !enabled || replay == nil {
		return
	}
	replay.RecordState(snapshot)
}

// GetReplay returns the in-memory replay for a room.
func (rr *ReplayRecorder) GetReplay(roomID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, exists := rr.replays[roomID]
	return replay, exists
}

// SaveReplay writes the room's replay to disk and drops it from memory.
func (rr *ReplayRecorder) SaveReplay(roomID string) error {
	rr.mu.Lock()
	replay, exists := rr.replays[roomID]
	if !exists {
		rr.mu.Unlock()
		return fmt.Errorf("no replay found for room %s", roomID)
	}
	delete(rr.replays, roomID)
	delete(rr.enabled, roomID)
	rr.mu.Unlock()

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	if rr.logger != nil {
		rr.logger.Info("saved replay to disk",
			zap.String("room_id", roomID),
			zap.Int("state_count", replay.Size()),
			zap.String("directory", rr.saveDir),
		)
	}
	return nil
}

// LoadReplay loads a previously saved replay from disk.
func (rr *ReplayRecorder) LoadReplay(roomID string) (*Replay, error) {
	replay, err := LoadReplayFromFile(rr.saveDir, roomID)
	if err != nil {
		return nil, err
	}

	if rr.logger != nil {
		rr.logger.Info("loaded replay from disk",
			zap.String("room_id", roomID),
			zap.Int("state_count", replay.Size()),
		)
	}
	return replay, nil
}

// ClearReplay drops a room's replay from memory without saving.
func (rr *ReplayRecorder) ClearReplay(roomID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.replays, roomID)
	delete(rr.enabled, roomID)
}

// IsRecording reports whether snapshots are being captured for the room.
func (rr *ReplayRecorder) IsRecording(roomID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.enabled[roomID]
}
