package api

import (
	"net/http"
	"time"

	"muxic/internal/db"
)

type HealthHandler struct {
	service   string
	database  *db.DB
	startedAt time.Time
}

func NewHealthHandler(service string, database *db.DB) *HealthHandler {
	return &HealthHandler{service: service, database: database, startedAt: time.Now()}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := h.database.Ping(); err != nil {
		checks["database"] = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"service": h.service,
		"status":  result,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"checks":  checks,
	})
}
