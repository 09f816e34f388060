package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	uploadService  *service.UploadService
	jobService     *service.JobService
	statusService  *service.StatusService
}

func NewSessionHandler(
	sessionService *service.SessionService,
	uploadService *service.UploadService,
	jobService *service.JobService,
	statusService *service.StatusService,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		uploadService:  uploadService,
		jobService:     jobService,
		statusService:  statusService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Post("/{sessionID}/uploads/{slot}", h.CreateUploadURL)
	r.Post("/{sessionID}/generate", h.Generate)
	r.Get("/{sessionID}/status", h.GetStatus)

	return r
}

type createSessionRequest struct {
	ProjectName string       `json:"project_name"`
	Owner       string       `json:"owner"`
	SourceURL   string       `json:"source_url"`
	Suggestions []model.Shot `json:"suggestions"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	session, err := h.sessionService.Create(r.Context(), service.CreateSessionInput{
		ProjectName: req.ProjectName,
		Owner:       req.Owner,
		SourceURL:   req.SourceURL,
		Suggestions: req.Suggestions,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type uploadURLRequest struct {
	Extension string `json:"extension"`
}

// POST /v1/sessions/{sessionID}/uploads/{slot}
func (h *SessionHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slot := chi.URLParam(r, "slot")

	var req uploadURLRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
			return
		}
	}

	grant, err := h.uploadService.CreateUploadURL(r.Context(), sessionID, slot, req.Extension)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// POST /v1/sessions/{sessionID}/generate
func (h *SessionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	receipt, err := h.jobService.Enqueue(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, receipt)
}

// GET /v1/sessions/{sessionID}/status
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	projection, err := h.statusService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projection)
}
