package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
)

// StateSnapshot is one recorded point in a game: the full state after a
// transition plus the effects that transition produced. Snapshots are what
// replays and the persistence layer store.
type StateSnapshot struct {
	RoomID    string
	Seq       int
	State     rules.GameState
	Effects   []rules.Effect
	Timestamp time.Time
}

func newSnapshot(roomID string, seq int, state rules.GameState, effects []rules.Effect) *StateSnapshot {
	return &StateSnapshot{
		RoomID:    roomID,
		Seq:       seq,
		State:     state.Clone(),
		Effects:   append([]rules.Effect(nil), effects...),
		Timestamp: time.Now(),
	}
}

// SerializationChecksum is a deterministic hash of a snapshot, used to
// detect divergent states across replays or after a restore.
type SerializationChecksum struct {
	Hash      string
	Timestamp string
	Version   int
}

// ComputeChecksum hashes a canonical representation of the snapshot. Fields
// that are not part of game semantics (timestamps, effect lists) are left
// out so that two equal states always hash identically.
func (snapshot *StateSnapshot) ComputeChecksum() (*SerializationChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(snapshot.canonicalString())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &SerializationChecksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: snapshot.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Version:   1,
	}, nil
}

// canonicalString renders the state independent of map iteration order.
// Seat order and deck order are semantic, so those stay as-is.
func (snapshot *StateSnapshot) canonicalString() string {
	var buf bytes.Buffer
	state := &snapshot.State

	fmt.Fprintf(&buf, "GAME:%s|%d|%s|%d|%d|%s\n",
		state.RoomID, snapshot.Seq, state.Status, state.TurnIndex, state.Treasury, state.Winner)

	for i := range state.Players {
		p := &state.Players[i]
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%t|", p.ID, p.Name, p.Coins, p.Connected)
		for _, c := range p.Cards {
			fmt.Fprintf(&buf, "%s:%t,", c.Role, c.Revealed)
		}
		buf.WriteString("\n")
	}

	deck := make([]string, len(state.Deck))
	for i, role := range state.Deck {
		deck[i] = string(role)
	}
	fmt.Fprintf(&buf, "DECK:%s\n", strings.Join(deck, ","))

	if pending := state.Pending; pending != nil {
		fmt.Fprintf(&buf, "PENDING:%s|%s|%s|%s\n",
			pending.Action, pending.ActorID, pending.TargetID, pending.ClaimedRole)
		writeSortedSet(&buf, "PASSED", pending.Passed)
		if pending.Block != nil {
			fmt.Fprintf(&buf, "BLOCK:%s|%s\n", pending.Block.BlockerID, pending.Block.ClaimedRole)
			writeSortedSet(&buf, "BLOCK_PASSED", pending.Block.Passed)
		}
		if pending.Challenge != nil {
			fmt.Fprintf(&buf, "CHALLENGE:%s|%s|%t|%t\n",
				pending.Challenge.ChallengerID, pending.Challenge.ClaimantID,
				pending.Challenge.AgainstBlock, pending.Challenge.Succeeded)
		}
		if pending.Reveal != nil {
			fmt.Fprintf(&buf, "REVEAL:%s|%s\n", pending.Reveal.PlayerID, pending.Reveal.FollowUp)
		}
		if pending.Exchange != nil {
			drawn := make([]string, len(pending.Exchange.Drawn))
			for i, role := range pending.Exchange.Drawn {
				drawn[i] = string(role)
			}
			fmt.Fprintf(&buf, "EXCHANGE:%s\n", strings.Join(drawn, ","))
		}
	}

	return buf.String()
}

func writeSortedSet(buf *bytes.Buffer, label string, set map[string]bool) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(buf, "%s:%s\n", label, strings.Join(keys, ","))
}

// VerifyChecksum reports whether the snapshot still hashes to expected.
func (snapshot *StateSnapshot) VerifyChecksum(expected *SerializationChecksum) (bool, error) {
	computed, err := snapshot.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}

// SerializeToBytes gob-encodes the snapshot. This is the encoding used for
// replay files.
func (snapshot *StateSnapshot) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a gob-encoded snapshot.
func DeserializeFromBytes(data []byte) (*StateSnapshot, error) {
	var snapshot StateSnapshot
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// ValidateSerializationRoundtrip checks that encoding loses nothing by
// comparing checksums before and after a roundtrip.
func ValidateSerializationRoundtrip(snapshot *StateSnapshot) error {
	original, err := snapshot.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}

	data, err := snapshot.SerializeToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}

	decoded, err := DeserializeFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	roundtrip, err := decoded.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute roundtrip checksum: %w", err)
	}

	if original.Hash != roundtrip.Hash {
		return fmt.Errorf("checksum mismatch: original=%s, roundtrip=%s", original.Hash, roundtrip.Hash)
	}
	return nil
}
