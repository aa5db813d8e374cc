package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"muxic/internal/models"
)

// SyncSessionRepository records room playback history. Rows are written
// CRUD-style by the handlers; nothing in the server replays or schedules
// them.
type SyncSessionRepository struct {
	db *DB
}

func NewSyncSessionRepository(db *DB) *SyncSessionRepository {
	return &SyncSessionRepository{db: db}
}

func (r *SyncSessionRepository) Start(roomID string) (*models.SyncSession, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO sync_sessions (session_id, room_id, started_at) VALUES (?, ?, ?)`,
		sessionID, roomID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("starting sync session: %w", err)
	}

	return &models.SyncSession{
		RoomID:    roomID,
		SessionID: sessionID,
		StartedAt: now,
	}, nil
}

// ActiveForRoom returns the most recent open session for a room.
func (r *SyncSessionRepository) ActiveForRoom(roomID string) (*models.SyncSession, error) {
	var s models.SyncSession
	var endedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT session_id, room_id, started_at, ended_at
		 FROM sync_sessions WHERE room_id = ? AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		roomID,
	).Scan(&s.SessionID, &s.RoomID, &s.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync session: %w", err)
	}

	s.EndedAt = nullTimeToPtr(endedAt)
	return &s, nil
}

func (r *SyncSessionRepository) End(sessionID string) error {
	result, err := r.db.Exec(
		`UPDATE sync_sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("ending sync session: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *SyncSessionRepository) LogEvent(sessionID string, eventType models.SyncEventType, userID, deviceID *string, data string) error {
	id, err := GenerateID("evt")
	if err != nil {
		return fmt.Errorf("generating event ID: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO sync_events (id, session_id, type, user_id, device_id, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, eventType, userID, deviceID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("logging sync event: %w", err)
	}
	return nil
}

func (r *SyncSessionRepository) EventsForSession(sessionID string) ([]*models.SyncEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, type, user_id, device_id, data, created_at
		 FROM sync_events WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sync events: %w", err)
	}
	defer rows.Close()

	var events []*models.SyncEvent
	for rows.Next() {
		var e models.SyncEvent
		var userID, deviceID sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &userID, &deviceID, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync event: %w", err)
		}
		e.UserID = nullStringToPtr(userID)
		e.DeviceID = nullStringToPtr(deviceID)
		events = append(events, &e)
	}

	return events, rows.Err()
}

// DeleteForRooms drops sessions and their events for the given rooms. Used
// by the account deletion cascade after the owned rooms are removed.
func (r *SyncSessionRepository) DeleteForRooms(roomIDs []string) error {
	if len(roomIDs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting sync session deletion transaction: %w", err)
	}
	defer tx.Rollback()

	for _, roomID := range roomIDs {
		if _, err := tx.Exec(
			`DELETE FROM sync_events WHERE session_id IN (SELECT session_id FROM sync_sessions WHERE room_id = ?)`,
			roomID,
		); err != nil {
			return fmt.Errorf("deleting sync events: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sync_sessions WHERE room_id = ?`, roomID); err != nil {
			return fmt.Errorf("deleting sync sessions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sync session deletion: %w", err)
	}
	return nil
}
