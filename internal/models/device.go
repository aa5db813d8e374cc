package models

import "time"

type DeviceType string

const (
	DeviceMobile       DeviceType = "mobile"
	DeviceDesktop      DeviceType = "desktop"
	DeviceTablet       DeviceType = "tablet"
	DeviceSmartSpeaker DeviceType = "smart_speaker"
	DeviceWeb          DeviceType = "web"
	DeviceOther        DeviceType = "other"
)

type Device struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Name         string     `json:"name"`
	Type         DeviceType `json:"type"`
	Platform     string     `json:"platform,omitempty"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SyncSession groups the playback events logged while a room is live. The
// server only records these rows; it does not replay or schedule them.
type SyncSession struct {
	RoomID    string     `json:"roomId"`
	SessionID string     `json:"sessionId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type SyncEventType string

const (
	EventPlay        SyncEventType = "play"
	EventPause       SyncEventType = "pause"
	EventSeek        SyncEventType = "seek"
	EventTrackChange SyncEventType = "track_change"
	EventUserJoin    SyncEventType = "user_join"
	EventUserLeave   SyncEventType = "user_leave"
	EventQueueAdd    SyncEventType = "queue_add"
	EventQueueRemove SyncEventType = "queue_remove"
)

type SyncEvent struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	Type      SyncEventType `json:"type"`
	UserID    *string       `json:"userId,omitempty"`
	DeviceID  *string       `json:"deviceId,omitempty"`
	Data      string        `json:"data,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// UserStats is the zero-initialized per-user counter row created at
// registration and bumped by room operations.
type UserStats struct {
	UserID         string     `json:"userId"`
	ListenMinutes  int64      `json:"listenMinutes"`
	SessionsJoined int64      `json:"sessionsJoined"`
	RoomsCreated   int64      `json:"roomsCreated"`
	TracksPlayed   int64      `json:"tracksPlayed"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}
