package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"muxic/internal/db"
	"muxic/internal/models"
)

const defaultPublicRoomLimit = 50

type RoomHandler struct {
	rooms        *db.RoomRepository
	syncSessions *db.SyncSessionRepository
	stats        *db.UserStatsRepository
}

func NewRoomHandler(rooms *db.RoomRepository, syncSessions *db.SyncSessionRepository, stats *db.UserStatsRepository) *RoomHandler {
	return &RoomHandler{rooms: rooms, syncSessions: syncSessions, stats: stats}
}

// POST /api/v1/rooms
type CreateRoomRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=100"`
	Description     string `json:"description" validate:"max=500"`
	IsPublic        *bool  `json:"isPublic"`
	MaxParticipants int    `json:"maxParticipants" validate:"omitempty,min=2,max=100"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	var req CreateRoomRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	maxParticipants := req.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = 10
	}

	room, err := h.rooms.Create(db.CreateRoomParams{
		Name:            strings.TrimSpace(profileSanitizer.Sanitize(req.Name)),
		Description:     strings.TrimSpace(profileSanitizer.Sanitize(req.Description)),
		CreatedBy:       userID,
		IsPublic:        isPublic,
		MaxParticipants: maxParticipants,
	})
	if err != nil {
		slog.Error("error creating room", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	if _, err := h.syncSessions.Start(room.ID); err != nil {
		slog.Error("error starting sync session", "error", err, "room_id", room.ID)
	}
	if err := h.stats.IncrementRoomsCreated(userID); err != nil {
		slog.Error("error updating stats", "error", err, "user_id", userID)
	}

	writeJSON(w, http.StatusCreated, room)
}

// GET /api/v1/rooms/public
func (h *RoomHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	limit := defaultPublicRoomLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			badRequest(w, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	rooms, err := h.rooms.FindPublic(limit)
	if err != nil {
		slog.Error("error listing public rooms", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// GET /api/v1/rooms
func (h *RoomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.FindForUser(GetUserID(r))
	if err != nil {
		slog.Error("error listing user rooms", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// GET /api/v1/rooms/{roomID}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, ok := h.loadRoom(w, r)
	if !ok {
		return
	}

	if !room.IsPublic {
		member, err := h.rooms.IsParticipant(room.ID, GetUserID(r))
		if err != nil {
			slog.Error("error checking participation", "error", err)
			internalError(w)
			return
		}
		if !member {
			notFound(w, "Room not found")
			return
		}
	}

	writeJSON(w, http.StatusOK, room)
}

// POST /api/v1/rooms/join
type JoinRoomRequest struct {
	Code string `json:"code" validate:"required,len=12"`
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	var req JoinRoomRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	room, err := h.rooms.FindByCode(strings.ToLower(strings.TrimSpace(req.Code)))
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Room not found")
		return
	}
	if err != nil {
		slog.Error("error finding room", "error", err)
		internalError(w)
		return
	}

	if err := h.rooms.AddParticipant(room.ID, userID); err != nil {
		if errors.Is(err, db.ErrRoomFull) {
			conflict(w, "Room is full")
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Room not found")
			return
		}
		slog.Error("error joining room", "error", err, "room_id", room.ID)
		internalError(w)
		return
	}

	h.logEvent(room.ID, models.EventUserJoin, userID, "")
	if err := h.stats.IncrementSessionsJoined(userID); err != nil {
		slog.Error("error updating stats", "error", err, "user_id", userID)
	}

	writeJSON(w, http.StatusOK, room)
}

// POST /api/v1/rooms/{roomID}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	roomID := chi.URLParam(r, "roomID")

	if err := h.rooms.RemoveParticipant(roomID, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Not a participant of this room")
			return
		}
		slog.Error("error leaving room", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	h.logEvent(roomID, models.EventUserLeave, userID, "")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Left the room"})
}

// POST /api/v1/rooms/{roomID}/queue
type QueueTrackRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	Artist    string  `json:"artist" validate:"max=200"`
	Album     string  `json:"album" validate:"max=200"`
	Duration  int     `json:"duration" validate:"omitempty,min=0"`
	URL       string  `json:"url" validate:"required,url,max=512"`
	Thumbnail *string `json:"thumbnail" validate:"omitempty,url,max=512"`
	Source    string  `json:"source" validate:"omitempty,oneof=upload stream external"`
}

func (h *RoomHandler) QueueTrack(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	roomID := chi.URLParam(r, "roomID")

	var req QueueTrackRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if !h.requireParticipant(w, roomID, userID) {
		return
	}

	entry, err := h.rooms.PushQueue(roomID, models.Track{
		Title:     strings.TrimSpace(profileSanitizer.Sanitize(req.Title)),
		Artist:    strings.TrimSpace(profileSanitizer.Sanitize(req.Artist)),
		Album:     strings.TrimSpace(profileSanitizer.Sanitize(req.Album)),
		Duration:  req.Duration,
		URL:       req.URL,
		Thumbnail: req.Thumbnail,
		Source:    req.Source,
	}, userID)
	if err != nil {
		slog.Error("error queueing track", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	h.logEvent(roomID, models.EventQueueAdd, userID, entry.ID)
	writeJSON(w, http.StatusCreated, entry)
}

// GET /api/v1/rooms/{roomID}/queue
func (h *RoomHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if !h.requireParticipant(w, roomID, GetUserID(r)) {
		return
	}

	queue, err := h.rooms.Queue(roomID)
	if err != nil {
		slog.Error("error loading queue", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

// DELETE /api/v1/rooms/{roomID}/queue/{entryID}
func (h *RoomHandler) RemoveQueueEntry(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	roomID := chi.URLParam(r, "roomID")
	entryID := chi.URLParam(r, "entryID")

	if !h.requireParticipant(w, roomID, userID) {
		return
	}

	if err := h.rooms.RemoveQueueEntry(roomID, entryID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Queue entry not found")
			return
		}
		slog.Error("error removing queue entry", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	h.logEvent(roomID, models.EventQueueRemove, userID, entryID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Removed from queue"})
}

// POST /api/v1/rooms/{roomID}/next
func (h *RoomHandler) AdvanceTrack(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	roomID := chi.URLParam(r, "roomID")

	if !h.requireParticipant(w, roomID, userID) {
		return
	}

	track, err := h.rooms.AdvanceTrack(roomID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Queue is empty")
		return
	}
	if err != nil {
		slog.Error("error advancing track", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	h.logEvent(roomID, models.EventTrackChange, userID, track.Title)
	if err := h.stats.IncrementTracksPlayed(userID); err != nil {
		slog.Error("error updating stats", "error", err, "user_id", userID)
	}

	writeJSON(w, http.StatusOK, track)
}

// PATCH /api/v1/rooms/{roomID}/playback
type PlaybackRequest struct {
	IsPlaying   *bool    `json:"isPlaying"`
	CurrentTime *float64 `json:"currentTime" validate:"omitempty,min=0"`
	Volume      *int     `json:"volume" validate:"omitempty,min=0,max=100"`
}

func (h *RoomHandler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	roomID := chi.URLParam(r, "roomID")

	var req PlaybackRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.IsPlaying == nil && req.CurrentTime == nil && req.Volume == nil {
		badRequest(w, "at least one playback field is required")
		return
	}

	if !h.requireParticipant(w, roomID, userID) {
		return
	}

	err := h.rooms.UpdatePlayback(roomID, db.PlaybackUpdate{
		IsPlaying:   req.IsPlaying,
		CurrentTime: req.CurrentTime,
		Volume:      req.Volume,
	})
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Room not found")
		return
	}
	if err != nil {
		slog.Error("error updating playback", "error", err, "room_id", roomID)
		internalError(w)
		return
	}

	if req.IsPlaying != nil {
		event := models.EventPause
		if *req.IsPlaying {
			event = models.EventPlay
		}
		h.logEvent(roomID, event, userID, "")
	} else if req.CurrentTime != nil {
		h.logEvent(roomID, models.EventSeek, userID, strconv.FormatFloat(*req.CurrentTime, 'f', 2, 64))
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Playback updated"})
}

func (h *RoomHandler) loadRoom(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	room, err := h.rooms.FindByID(chi.URLParam(r, "roomID"))
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Room not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error finding room", "error", err)
		internalError(w)
		return nil, false
	}
	return room, true
}

func (h *RoomHandler) requireParticipant(w http.ResponseWriter, roomID, userID string) bool {
	member, err := h.rooms.IsParticipant(roomID, userID)
	if err != nil {
		slog.Error("error checking participation", "error", err, "room_id", roomID)
		internalError(w)
		return false
	}
	if !member {
		forbidden(w, "You are not a participant of this room")
		return false
	}
	return true
}

func (h *RoomHandler) logEvent(roomID string, eventType models.SyncEventType, userID, data string) {
	session, err := h.syncSessions.ActiveForRoom(roomID)
	if errors.Is(err, db.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("error finding sync session", "error", err, "room_id", roomID)
		return
	}
	if err := h.syncSessions.LogEvent(session.SessionID, eventType, &userID, nil, data); err != nil {
		slog.Error("error logging sync event", "error", err, "room_id", roomID)
	}
}
