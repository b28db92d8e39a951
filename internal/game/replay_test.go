package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
)

func dealSnapshot(t *testing.T, roomID string, seq int) *StateSnapshot {
	t.Helper()
	state, err := rules.NewGame(roomID, testSeats(), rand.New(rand.NewSource(int64(seq))))
	require.NoError(t, err)
	return newSnapshot(roomID, seq, state, nil)
}

func TestReplayPlayback(t *testing.T) {
	replay := NewReplay("room-1")
	for i := 0; i < 3; i++ {
		replay.RecordState(dealSnapshot(t, "room-1", i))
	}

	assert.Equal(t, 3, replay.Size())

	replay.Start()
	first := replay.Next()
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Seq)

	second := replay.Next()
	require.NotNil(t, second)
	assert.Equal(t, 1, second.Seq)

	back := replay.Previous()
	require.NotNil(t, back)
	assert.Equal(t, 1, back.Seq)

	assert.Nil(t, replay.GetStateAt(99))
	assert.Equal(t, 2, replay.GetStateAt(2).Seq)
}

func TestReplaySaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	replay := NewReplay("room-1")
	for i := 0; i < 4; i++ {
		replay.RecordState(dealSnapshot(t, "room-1", i))
	}
	require.NoError(t, replay.SaveToFile(dir))

	loaded, err := LoadReplayFromFile(dir, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", loaded.RoomID)
	require.Equal(t, replay.Size(), loaded.Size())

	for i := 0; i < replay.Size(); i++ {
		original, err := replay.GetStateAt(i).ComputeChecksum()
		require.NoError(t, err)
		roundtrip, err := loaded.GetStateAt(i).ComputeChecksum()
		require.NoError(t, err)
		assert.Equal(t, original.Hash, roundtrip.Hash, "state %d", i)
	}

	_, err = LoadReplayFromFile(dir, "missing-room")
	assert.Error(t, err)
}

func TestReplayRecorder(t *testing.T) {
	dir := t.TempDir()
	recorder := NewReplayRecorder(zap.NewNop(), dir)

	recorder.StartRecording("room-1")
	assert.True(t, recorder.IsRecording("room-1"))

	recorder.RecordState("room-1", dealSnapshot(t, "room-1", 0))
	recorder.RecordState("room-1", dealSnapshot(t, "room-1", 1))

	// States for unknown rooms are dropped silently.
	recorder.RecordState("room-9", dealSnapshot(t, "room-9", 0))

	replay, exists := recorder.GetReplay("room-1")
	require.True(t, exists)
	assert.Equal(t, 2, replay.Size())

	recorder.StopRecording("room-1")
	recorder.RecordState("room-1", dealSnapshot(t, "room-1", 2))
	assert.Equal(t, 2, replay.Size(), "no recording after stop")

	require.NoError(t, recorder.SaveReplay("room-1"))
	_, exists = recorder.GetReplay("room-1")
	assert.False(t, exists, "saved replay leaves memory")

	loaded, err := recorder.LoadReplay("room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Size())

	require.Error(t, recorder.SaveReplay("room-1"), "already saved")
}

func TestEngineRecordsReplay(t *testing.T) {
	dir := t.TempDir()
	recorder := NewReplayRecorder(zap.NewNop(), dir)
	engine := NewCoupEngine(zap.NewNop(), recorder)

	require.NoError(t, engine.StartGame("room-1", testSeats(), 7))
	require.NoError(t, engine.DeclareAction("room-1", "alice", rules.ActionIncome, ""))
	require.NoError(t, engine.DeclareAction("room-1", "bob", rules.ActionIncome, ""))

	replay, exists := recorder.GetReplay("room-1")
	require.True(t, exists)
	assert.Equal(t, 3, replay.Size(), "deal plus two transitions")

	// Effects travel with the snapshots they belong to.
	assert.Empty(t, replay.GetStateAt(0).Effects)
	assert.NotEmpty(t, replay.GetStateAt(1).Effects)
}

func TestEngineWithoutRecorder(t *testing.T) {
	engine := NewCoupEngine(zap.NewNop(), nil)

	// A game one coup away from its end exercises the finish path, which
	// only saves a replay when capture is on.
	state := rules.GameState{
		RoomID: "room-1",
		Players: []rules.Player{
			{ID: "alice", Name: "Alice", Coins: 7, Connected: true,
				Cards: []rules.Card{{Role: rules.RoleDuke}, {Role: rules.RoleCaptain}}},
			{ID: "bob", Name: "Bob", Coins: 2, Connected: true,
				Cards: []rules.Card{{Role: rules.RoleContessa}, {Role: rules.RoleAssassin, Revealed: true}}},
		},
		Deck:     rules.Deck{rules.RoleAmbassador},
		Treasury: 41,
		Status:   rules.StatusActive,
	}
	require.NoError(t, engine.RestoreGame(newSnapshot("room-1", 5, state, nil), 7))

	require.NoError(t, engine.DeclareAction("room-1", "alice", rules.ActionCoup, "bob"))

	snap, err := engine.Snapshot("room-1")
	require.NoError(t, err)
	assert.Equal(t, rules.StatusFinished, snap.State.Status)
	assert.Equal(t, "alice", snap.State.Winner)

	engine.EndGame("room-1")
	assert.False(t, engine.GameExists("room-1"))
}
