package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"muxic/internal/models"
)

const roomColumns = `id, code, name, description, created_by, is_public, max_participants,
	track_title, track_artist, track_album, track_duration, track_url, track_thumbnail, track_source,
	is_playing, playback_position, volume, playback_updated_at,
	is_active, last_activity, created_at, updated_at`

type RoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// generateRoomCode returns the short shareable code embedded in invite links.
func generateRoomCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type CreateRoomParams struct {
	Name            string
	Description     string
	CreatedBy       string
	IsPublic        bool
	MaxParticipants int
}

// Create inserts the room and seats the creator as its admin participant.
func (r *RoomRepository) Create(p CreateRoomParams) (*models.Room, error) {
	id, err := GenerateID("room")
	if err != nil {
		return nil, fmt.Errorf("generating room ID: %w", err)
	}
	code, err := generateRoomCode()
	if err != nil {
		return nil, fmt.Errorf("generating room code: %w", err)
	}
	if p.MaxParticipants <= 0 {
		p.MaxParticipants = 10
	}
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting room creation transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO rooms (id, code, name, description, created_by, is_public, max_participants, last_activity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, code, p.Name, p.Description, p.CreatedBy, p.IsPublic, p.MaxParticipants, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO room_participants (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		id, p.CreatedBy, models.RoleAdmin, now,
	)
	if err != nil {
		return nil, fmt.Errorf("seating room creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing room creation: %w", err)
	}

	return r.FindByID(id)
}

func (r *RoomRepository) FindByID(id string) (*models.Room, error) {
	return r.findOne(`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

func (r *RoomRepository) FindByCode(code string) (*models.Room, error) {
	return r.findOne(`SELECT `+roomColumns+` FROM rooms WHERE code = ?`, code)
}

func (r *RoomRepository) FindPublic(limit int) ([]*models.Room, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.findMany(
		`SELECT `+roomColumns+` FROM rooms WHERE is_public = 1 AND is_active = 1 ORDER BY last_activity DESC LIMIT ?`,
		limit,
	)
}

// FindForUser lists rooms the user created or participates in, most recently
// active first.
func (r *RoomRepository) FindForUser(userID string) ([]*models.Room, error) {
	return r.findMany(
		`SELECT DISTINCT `+roomColumns+` FROM rooms
		 WHERE is_active = 1
		   AND (created_by = ?1 OR id IN (SELECT room_id FROM room_participants WHERE user_id = ?1))
		 ORDER BY last_activity DESC`,
		userID,
	)
}

// AddParticipant seats a user in the room, refreshing join time if already
// seated. Capacity is enforced here at CRUD level only.
func (r *RoomRepository) AddParticipant(roomID, userID string) error {
	now := time.Now().UTC()

	var count, max int
	err := r.db.QueryRow(
		`SELECT (SELECT COUNT(*) FROM room_participants WHERE room_id = ?1), max_participants
		 FROM rooms WHERE id = ?1 AND is_active = 1`,
		roomID,
	).Scan(&count, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking room capacity: %w", err)
	}
	if count >= max {
		return ErrRoomFull
	}

	_, err = r.db.Exec(
		`INSERT INTO room_participants (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(room_id, user_id) DO UPDATE SET joined_at = excluded.joined_at`,
		roomID, userID, models.RoleParticipant, now,
	)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}

	return r.touchActivity(roomID)
}

var ErrRoomFull = errors.New("room is full")

func (r *RoomRepository) RemoveParticipant(roomID, userID string) error {
	result, err := r.db.Exec(
		`DELETE FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}
	return r.touchActivity(roomID)
}

// RemoveParticipantEverywhere pulls a user out of all rooms. Used by the
// account deletion cascade.
func (r *RoomRepository) RemoveParticipantEverywhere(userID string) error {
	_, err := r.db.Exec(`DELETE FROM room_participants WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("removing participant from all rooms: %w", err)
	}
	return nil
}

func (r *RoomRepository) IsParticipant(roomID, userID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking participant: %w", err)
	}
	return count > 0, nil
}

func (r *RoomRepository) PushQueue(roomID string, track models.Track, addedBy string) (*models.QueueEntry, error) {
	id, err := GenerateID("qe")
	if err != nil {
		return nil, fmt.Errorf("generating queue entry ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO room_queue (id, room_id, title, artist, album, duration, url, thumbnail, source, added_by, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, roomID, track.Title, track.Artist, track.Album, track.Duration, track.URL, track.Thumbnail,
		track.Source, addedBy, now,
	)
	if err != nil {
		return nil, fmt.Errorf("queueing track: %w", err)
	}

	if err := r.touchActivity(roomID); err != nil {
		return nil, err
	}

	return &models.QueueEntry{
		ID:      id,
		RoomID:  roomID,
		Track:   track,
		AddedBy: addedBy,
		AddedAt: now,
	}, nil
}

func (r *RoomRepository) RemoveQueueEntry(roomID, entryID string) error {
	result, err := r.db.Exec(
		`DELETE FROM room_queue WHERE id = ? AND room_id = ?`,
		entryID, roomID,
	)
	if err != nil {
		return fmt.Errorf("removing queue entry: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}
	return r.touchActivity(roomID)
}

func (r *RoomRepository) Queue(roomID string) ([]*models.QueueEntry, error) {
	rows, err := r.db.Query(
		`SELECT id, room_id, title, artist, album, duration, url, thumbnail, source, added_by, added_at
		 FROM room_queue WHERE room_id = ? ORDER BY added_at, id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var thumbnail sql.NullString
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Track.Title, &e.Track.Artist, &e.Track.Album,
			&e.Track.Duration, &e.Track.URL, &thumbnail, &e.Track.Source, &e.AddedBy, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		e.Track.Thumbnail = nullStringToPtr(thumbnail)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// AdvanceTrack pops the oldest queue entry into the room's current track and
// resets the playback position. Returns ErrNotFound when the queue is empty.
func (r *RoomRepository) AdvanceTrack(roomID string) (*models.Track, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting track advance transaction: %w", err)
	}
	defer tx.Rollback()

	var entryID string
	var track models.Track
	var thumbnail sql.NullString
	err = tx.QueryRow(
		`SELECT id, title, artist, album, duration, url, thumbnail, source
		 FROM room_queue WHERE room_id = ? ORDER BY added_at, id LIMIT 1`,
		roomID,
	).Scan(&entryID, &track.Title, &track.Artist, &track.Album, &track.Duration, &track.URL, &thumbnail, &track.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue head: %w", err)
	}
	track.Thumbnail = nullStringToPtr(thumbnail)

	if _, err := tx.Exec(`DELETE FROM room_queue WHERE id = ?`, entryID); err != nil {
		return nil, fmt.Errorf("popping queue head: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE rooms
		 SET track_title = ?, track_artist = ?, track_album = ?, track_duration = ?,
		     track_url = ?, track_thumbnail = ?, track_source = ?,
		     playback_position = 0, playback_updated_at = ?, last_activity = ?, updated_at = ?
		 WHERE id = ?`,
		track.Title, track.Artist, track.Album, track.Duration, track.URL, track.Thumbnail, track.Source,
		now, now, now, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("setting current track: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing track advance: %w", err)
	}

	return &track, nil
}

type PlaybackUpdate struct {
	IsPlaying   *bool
	CurrentTime *float64
	Volume      *int
}

// UpdatePlayback applies a partial playback-state patch, last writer wins.
func (r *RoomRepository) UpdatePlayback(roomID string, u PlaybackUpdate) error {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE rooms
		 SET is_playing = COALESCE(?, is_playing),
		     playback_position = COALESCE(?, playback_position),
		     volume = COALESCE(?, volume),
		     playback_updated_at = ?, last_activity = ?, updated_at = ?
		 WHERE id = ?`,
		u.IsPlaying, u.CurrentTime, u.Volume, now, now, now, roomID,
	)
	if err != nil {
		return fmt.Errorf("updating playback: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteByCreator removes every room the user owns, including seats and
// queues, and reports the deleted room ids so sync sessions can follow.
func (r *RoomRepository) DeleteByCreator(userID string) ([]string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting room deletion transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM rooms WHERE created_by = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing owned rooms: %w", err)
	}
	var roomIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning room id: %w", err)
		}
		roomIDs = append(roomIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, roomID := range roomIDs {
		if _, err := tx.Exec(`DELETE FROM room_queue WHERE room_id = ?`, roomID); err != nil {
			return nil, fmt.Errorf("deleting room queue: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM room_participants WHERE room_id = ?`, roomID); err != nil {
			return nil, fmt.Errorf("deleting room participants: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
			return nil, fmt.Errorf("deleting room: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing room deletion: %w", err)
	}

	return roomIDs, nil
}

func (r *RoomRepository) touchActivity(roomID string) error {
	_, err := r.db.Exec(`UPDATE rooms SET last_activity = ? WHERE id = ?`, time.Now().UTC(), roomID)
	if err != nil {
		return fmt.Errorf("touching room activity: %w", err)
	}
	return nil
}

func (r *RoomRepository) findOne(query string, args ...any) (*models.Room, error) {
	rooms, err := r.scanRooms(query, args...)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, ErrNotFound
	}
	return rooms[0], nil
}

func (r *RoomRepository) findMany(query string, args ...any) ([]*models.Room, error) {
	return r.scanRooms(query, args...)
}

func (r *RoomRepository) scanRooms(query string, args ...any) ([]*models.Room, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		var rm models.Room
		var (
			trackTitle, trackArtist, trackAlbum, trackURL, trackThumb, trackSource sql.NullString
			trackDuration                                                          sql.NullInt64
			playbackUpdated, updatedAt                                             sql.NullTime
		)

		if err := rows.Scan(
			&rm.ID, &rm.Code, &rm.Name, &rm.Description, &rm.CreatedBy, &rm.IsPublic, &rm.MaxParticipants,
			&trackTitle, &trackArtist, &trackAlbum, &trackDuration, &trackURL, &trackThumb, &trackSource,
			&rm.Playback.IsPlaying, &rm.Playback.CurrentTime, &rm.Playback.Volume, &playbackUpdated,
			&rm.IsActive, &rm.LastActivity, &rm.CreatedAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}

		if trackTitle.Valid && trackURL.Valid {
			rm.CurrentTrack = &models.Track{
				Title:     trackTitle.String,
				Artist:    trackArtist.String,
				Album:     trackAlbum.String,
				Duration:  int(trackDuration.Int64),
				URL:       trackURL.String,
				Thumbnail: nullStringToPtr(trackThumb),
				Source:    trackSource.String,
			}
		}
		if playbackUpdated.Valid {
			rm.Playback.LastUpdated = playbackUpdated.Time
		}
		rm.UpdatedAt = nullTimeToPtr(updatedAt)

		rooms = append(rooms, &rm)
	}

	return rooms, rows.Err()
}
