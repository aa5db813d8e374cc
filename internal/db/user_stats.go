package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muxic/internal/models"
)

type UserStatsRepository struct {
	db *DB
}

func NewUserStatsRepository(db *DB) *UserStatsRepository {
	return &UserStatsRepository{db: db}
}

// Initialize creates the zeroed counter row for a new account. Idempotent so
// a retried registration does not fail here.
func (r *UserStatsRepository) Initialize(userID string) error {
	_, err := r.db.Exec(
		`INSERT INTO user_stats (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("initializing user stats: %w", err)
	}
	return nil
}

func (r *UserStatsRepository) Get(userID string) (*models.UserStats, error) {
	var s models.UserStats
	var updatedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT user_id, listen_minutes, sessions_joined, rooms_created, tracks_played, updated_at
		 FROM user_stats WHERE user_id = ?`,
		userID,
	).Scan(&s.UserID, &s.ListenMinutes, &s.SessionsJoined, &s.RoomsCreated, &s.TracksPlayed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user stats: %w", err)
	}

	s.UpdatedAt = nullTimeToPtr(updatedAt)
	return &s, nil
}

func (r *UserStatsRepository) IncrementRoomsCreated(userID string) error {
	return r.increment(userID, "rooms_created", 1)
}

func (r *UserStatsRepository) IncrementSessionsJoined(userID string) error {
	return r.increment(userID, "sessions_joined", 1)
}

func (r *UserStatsRepository) IncrementTracksPlayed(userID string) error {
	return r.increment(userID, "tracks_played", 1)
}

func (r *UserStatsRepository) AddListenMinutes(userID string, minutes int64) error {
	return r.increment(userID, "listen_minutes", minutes)
}

func (r *UserStatsRepository) increment(userID, column string, delta int64) error {
	// column is always one of the fixed counter names above, never user input.
	_, err := r.db.Exec(
		`UPDATE user_stats SET `+column+` = `+column+` + ?, updated_at = ? WHERE user_id = ?`,
		delta, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", column, err)
	}
	return nil
}

func (r *UserStatsRepository) Delete(userID string) error {
	_, err := r.db.Exec(`DELETE FROM user_stats WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting user stats: %w", err)
	}
	return nil
}
