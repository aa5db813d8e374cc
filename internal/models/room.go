package models

import "time"

type ParticipantRole string

const (
	RoleAdmin       ParticipantRole = "admin"
	RoleParticipant ParticipantRole = "participant"
)

type Track struct {
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Album     string  `json:"album,omitempty"`
	Duration  int     `json:"duration,omitempty"`
	URL       string  `json:"url"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	Source    string  `json:"source,omitempty"`
}

type PlaybackState struct {
	IsPlaying   bool      `json:"isPlaying"`
	CurrentTime float64   `json:"currentTime"`
	Volume      int       `json:"volume"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Room struct {
	ID              string        `json:"id"`
	Code            string        `json:"code"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	CreatedBy       string        `json:"createdBy"`
	IsPublic        bool          `json:"isPublic"`
	MaxParticipants int           `json:"maxParticipants"`
	CurrentTrack    *Track        `json:"currentTrack,omitempty"`
	Playback        PlaybackState `json:"playback"`
	IsActive        bool          `json:"isActive"`
	LastActivity    time.Time     `json:"lastActivity"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty"`
}

type RoomParticipant struct {
	RoomID   string          `json:"roomId"`
	UserID   string          `json:"userId"`
	Role     ParticipantRole `json:"role"`
	JoinedAt time.Time       `json:"joinedAt"`
}

type QueueEntry struct {
	ID      string    `json:"id"`
	RoomID  string    `json:"roomId"`
	Track   Track     `json:"track"`
	AddedBy string    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}
