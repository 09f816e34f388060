package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/demoreel/demoreel-server/internal/config"
	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/service"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler serves the health probe and the manual cleanup trigger.
type AdminHandler struct {
	db      pinger
	cleanup *service.CleanupService
}

func NewAdminHandler(db pinger, cleanup *service.CleanupService) *AdminHandler {
	return &AdminHandler{db: db, cleanup: cleanup}
}

// GET /health
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cleanupRequest struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// POST /v1/cleanup
// With a session_id in the body the cleanup targets that session in the
// requested mode; without one it runs the retention sweep.
func (h *AdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
			return
		}
	}

	if req.SessionID != "" {
		mode := req.Mode
		if mode == "" {
			mode = "intermediate"
		}
		if err := h.cleanup.CleanupSession(r.Context(), req.SessionID, mode); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID, "mode": mode})
		return
	}

	purged, err := h.cleanup.RunScheduled(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}
