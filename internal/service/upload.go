package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

// extensions accepted for raw uploads, keyed by normalized form
var uploadExtensions = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
}

// UploadGrant is a presigned upload slot handed to the recorder.
type UploadGrant struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

type UploadService struct {
	repo       repository.SessionRepository
	store      storage.ObjectStore
	dispatcher queue.Dispatcher
	uploadTTL  time.Duration
}

func NewUploadService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	dispatcher queue.Dispatcher,
	uploadTTL time.Duration,
) *UploadService {
	return &UploadService{
		repo:       repo,
		store:      store,
		dispatcher: dispatcher,
		uploadTTL:  uploadTTL,
	}
}

// CreateUploadURL reserves a slot and hands back a presigned PUT URL.
// Re-requesting a slot restarts that clip from scratch.
func (s *UploadService) CreateUploadURL(ctx context.Context, sessionID, slot, extension string) (*UploadGrant, error) {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	if ext == "" {
		ext = "mp4"
	}
	contentType, ok := uploadExtensions[ext]
	if !ok {
		return nil, apperrors.InvalidInput("extension", fmt.Sprintf("unsupported video format %q", ext))
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	if !session.Status.AcceptsUploads() {
		return nil, apperrors.InvalidState(fmt.Sprintf("session is %s, uploads are closed", session.Status))
	}
	if !slotSuggested(session.Suggestions, slot) {
		return nil, apperrors.InvalidInput("slot", fmt.Sprintf("no suggested shot with sequence number %s", slot))
	}

	key := storage.ClipKey(sessionID, slot, ext)
	uploadURL, err := s.store.PresignPut(ctx, key, contentType, s.uploadTTL)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	if err := s.repo.PutClip(ctx, sessionID, slot, model.ClipRecord{
		Status:      model.ClipStatusInitiated,
		S3Key:       key,
		InitiatedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, apperrors.Database(err)
	}
	if _, err := s.repo.AdvanceStatus(ctx, sessionID,
		[]model.SessionStatus{model.StatusReady}, model.StatusUploading); err != nil {
		return nil, apperrors.Database(err)
	}

	return &UploadGrant{
		UploadURL: uploadURL,
		Key:       key,
		ExpiresIn: int(s.uploadTTL.Seconds()),
	}, nil
}

// HandleObjectCreated ingests a storage event for a finished upload.
// Keys outside the raw-upload layout are ignored, and re-delivered
// events just rewrite the same clip state.
func (s *UploadService) HandleObjectCreated(ctx context.Context, key string, size int64) error {
	sessionID, slot, ok := storage.ParseUploadKey(key)
	if !ok {
		log.Debug().Str("key", key).Msg("ignoring storage event outside upload layout")
		return nil
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("key", key).Str("session_id", sessionID).Msg("upload event for unknown session")
		return nil
	}
	if !slotSuggested(session.Suggestions, slot) {
		log.Warn().Str("key", key).Str("slot", slot).Msg("upload event for unsuggested slot")
		return nil
	}

	clip := session.Clips[slot]
	clip.Status = model.ClipStatusUploaded
	clip.S3Key = key
	clip.FileSize = size
	clip.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	clip.Validation = nil
	clip.Converted = nil
	clip.Error = ""
	if err := s.repo.PutClip(ctx, sessionID, slot, clip); err != nil {
		return apperrors.Database(err)
	}
	// Direct uploads can arrive before any presign request.
	if _, err := s.repo.AdvanceStatus(ctx, sessionID,
		[]model.SessionStatus{model.StatusReady}, model.StatusUploading); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("slot", slot).
		Int64("size", size).
		Msg("clip uploaded")

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:      queue.KindValidateClip,
		SessionID: sessionID,
		Slot:      slot,
	}); err != nil {
		return apperrors.Queue(err)
	}
	return nil
}

func slotSuggested(suggestions model.ShotList, slot string) bool {
	for _, shot := range suggestions {
		if shot.SlotKey() == slot {
			return true
		}
	}
	return false
}
