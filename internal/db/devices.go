package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muxic/internal/models"
)

type DeviceRepository struct {
	db *DB
}

func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert registers a device, keyed by (user, name) so re-registering the
// same device refreshes its activity instead of duplicating it.
func (r *DeviceRepository) Upsert(userID, name string, deviceType models.DeviceType, platform string) (*models.Device, error) {
	id, err := GenerateID("dev")
	if err != nil {
		return nil, fmt.Errorf("generating device ID: %w", err)
	}
	if platform == "" {
		platform = "unknown"
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO devices (id, user_id, name, type, platform, last_active_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET
		     type = excluded.type,
		     platform = excluded.platform,
		     last_active_at = excluded.last_active_at`,
		id, userID, name, deviceType, platform, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}

	return r.findByUserAndName(userID, name)
}

func (r *DeviceRepository) ListForUser(userID string) ([]*models.Device, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, name, type, platform, last_active_at, created_at
		 FROM devices WHERE user_id = ? ORDER BY last_active_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.Platform, &d.LastActiveAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, &d)
	}

	return devices, rows.Err()
}

// Delete removes a device, scoped to its owner.
func (r *DeviceRepository) Delete(userID, deviceID string) error {
	result, err := r.db.Exec(`DELETE FROM devices WHERE id = ? AND user_id = ?`, deviceID, userID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *DeviceRepository) DeleteAllForUser(userID string) error {
	_, err := r.db.Exec(`DELETE FROM devices WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting user devices: %w", err)
	}
	return nil
}

func (r *DeviceRepository) findByUserAndName(userID, name string) (*models.Device, error) {
	var d models.Device
	err := r.db.QueryRow(
		`SELECT id, user_id, name, type, platform, last_active_at, created_at
		 FROM devices WHERE user_id = ? AND name = ?`,
		userID, name,
	).Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.Platform, &d.LastActiveAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return &d, nil
}
