package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrSnapshotNotFound is returned when a room has no stored snapshot.
var ErrSnapshotNotFound = errors.New("game snapshot not found")

// GameRepository persists serialized game snapshots so rooms survive a
// server restart.
type GameRepository struct {
	db *DB
}

func NewGameRepository(db *DB) *GameRepository {
	return &GameRepository{db: db}
}

// SaveSnapshot upserts the latest snapshot for a room.
func (r *GameRepository) SaveSnapshot(ctx context.Context, roomID string, seq uint64, data []byte) error {
	const query = `
		INSERT INTO game_snapshots (room_id, seq, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (room_id) DO UPDATE
		SET seq = EXCLUDED.seq, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.pool.Exec(ctx, query, roomID, seq, data); err != nil {
		return fmt.Errorf("failed to save snapshot for room %s: %w", roomID, err)
	}
	return nil
}

// LoadLatest returns the most recent snapshot for a room.
func (r *GameRepository) LoadLatest(ctx context.Context, roomID string) (seq uint64, data []byte, updatedAt time.Time, err error) {
	const query = `
		SELECT seq, data, updated_at
		FROM game_snapshots
		WHERE room_id = $1`

	err = r.db.pool.QueryRow(ctx, query, roomID).Scan(&seq, &data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, time.Time{}, ErrSnapshotNotFound
	}
	if err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("failed to load snapshot for room %s: %w", roomID, err)
	}
	return seq, data, updatedAt, nil
}

// DeleteRoom removes the stored snapshot once a game is over.
func (r *GameRepository) DeleteRoom(ctx context.Context, roomID string) error {
	const query = `DELETE FROM game_snapshots WHERE room_id = $1`
	if _, err := r.db.pool.Exec(ctx, query, roomID); err != nil {
		return fmt.Errorf("failed to delete snapshot for room %s: %w", roomID, err)
	}
	return nil
}
