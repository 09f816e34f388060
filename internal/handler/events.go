package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/service"
)

// EventsHandler ingests object-created notifications from the media
// bucket, in the standard S3 notification envelope.
type EventsHandler struct {
	uploadService *service.UploadService
}

func NewEventsHandler(uploadService *service.UploadService) *EventsHandler {
	return &EventsHandler{uploadService: uploadService}
}

type storageEvent struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// POST /v1/events/storage
func (h *EventsHandler) HandleStorageEvent(w http.ResponseWriter, r *http.Request) {
	var event storageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	accepted := 0
	for _, record := range event.Records {
		// Notification keys arrive URL encoded.
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			key = record.S3.Object.Key
		}
		if err := h.uploadService.HandleObjectCreated(r.Context(), key, record.S3.Object.Size); err != nil {
			log.Error().Err(err).Str("key", key).Msg("storage event failed")
			writeError(w, err)
			return
		}
		accepted++
	}

	writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}
