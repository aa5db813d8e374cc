package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"muxic/internal/db"
	"muxic/internal/models"
)

type DeviceHandler struct {
	devices *db.DeviceRepository
	stats   *db.UserStatsRepository
}

func NewDeviceHandler(devices *db.DeviceRepository, stats *db.UserStatsRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices, stats: stats}
}

// POST /api/v1/devices
type RegisterDeviceRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Type     string `json:"type" validate:"required,oneof=web mobile tablet desktop smart_speaker other"`
	Platform string `json:"platform" validate:"max=100"`
}

// Register upserts by user and device name, so re-registering the same
// device refreshes it instead of piling up rows.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	var req RegisterDeviceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	device, err := h.devices.Upsert(
		userID,
		strings.TrimSpace(profileSanitizer.Sanitize(req.Name)),
		models.DeviceType(req.Type),
		strings.TrimSpace(req.Platform),
	)
	if err != nil {
		slog.Error("error registering device", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

// GET /api/v1/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListForUser(GetUserID(r))
	if err != nil {
		slog.Error("error listing devices", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// DELETE /api/v1/devices/{deviceID}
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	deviceID := chi.URLParam(r, "deviceID")

	if err := h.devices.Delete(userID, deviceID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Device not found")
			return
		}
		slog.Error("error removing device", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Device removed"})
}

// GET /api/v1/stats
func (h *DeviceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	stats, err := h.stats.Get(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "No stats recorded yet")
		return
	}
	if err != nil {
		slog.Error("error loading stats", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
