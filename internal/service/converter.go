package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

type ConverterService struct {
	repo       repository.SessionRepository
	store      storage.ObjectStore
	processor  media.Processor
	dispatcher queue.Dispatcher
}

func NewConverterService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	processor media.Processor,
	dispatcher queue.Dispatcher,
) *ConverterService {
	return &ConverterService{
		repo:       repo,
		store:      store,
		processor:  processor,
		dispatcher: dispatcher,
	}
}

// HandleConvert normalizes a validated clip to the canonical format and
// re-scans the whole upload map afterwards. The scan, not a counter,
// decides readiness, so conversions may finish in any order and tasks
// may be re-delivered safely.
func (s *ConverterService) HandleConvert(ctx context.Context, task queue.Task) error {
	session, err := s.repo.FindByID(ctx, task.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("session_id", task.SessionID).Msg("convert task for unknown session")
		return nil
	}
	clip, ok := session.Clips[task.Slot]
	if !ok || clip.Status != model.ClipStatusValidated {
		return nil
	}

	workdir, err := os.MkdirTemp("", "convert-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	localIn := filepath.Join(workdir, "raw"+filepath.Ext(clip.S3Key))
	if err := s.store.Download(ctx, clip.S3Key, localIn); err != nil {
		return apperrors.Storage(err)
	}

	localOut := filepath.Join(workdir, "standardized.mp4")
	if err := s.processor.Standardize(ctx, localIn, localOut); err != nil {
		return s.fail(ctx, task, clip, err)
	}

	// Sources without an audio track get a silent one so the concat
	// step sees uniform streams.
	if clip.Validation != nil && !clip.Validation.HasAudio {
		withAudio := filepath.Join(workdir, "with_audio.mp4")
		if err := s.processor.EnsureAudio(ctx, localOut, withAudio); err != nil {
			return s.fail(ctx, task, clip, err)
		}
		localOut = withAudio
	}

	outInfo, err := os.Stat(localOut)
	if err != nil {
		return err
	}

	standardizedKey := storage.StandardizedKey(task.SessionID, task.Slot)
	if err := s.store.Upload(ctx, localOut, standardizedKey, "video/mp4"); err != nil {
		return apperrors.Storage(err)
	}

	clip.Status = model.ClipStatusConverted
	clip.Error = ""
	clip.Converted = &model.ClipConversion{
		StandardizedKey:  standardizedKey,
		OutputSize:       outInfo.Size(),
		OutputResolution: "1920x1080",
		OutputFPS:        30,
		OutputCodec:      "h264",
		ConvertedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.PutClip(ctx, task.SessionID, task.Slot, clip); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", task.SessionID).
		Str("slot", task.Slot).
		Int64("size", outInfo.Size()).
		Msg("clip converted")

	return s.checkReadiness(ctx, task.SessionID)
}

// checkReadiness reloads the session and promotes it once every
// suggested shot has a converted clip.
func (s *ConverterService) checkReadiness(ctx context.Context, sessionID string) error {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return nil
	}
	if !model.AllClipsConverted(session.Suggestions, session.Clips) {
		return nil
	}

	advanced, err := s.repo.AdvanceStatus(ctx, sessionID,
		[]model.SessionStatus{model.StatusUploading}, model.StatusReadyForProcessing)
	if err != nil {
		return apperrors.Database(err)
	}
	if !advanced {
		return nil
	}

	log.Info().Str("session_id", sessionID).Msg("all clips converted, session ready for processing")

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:        queue.KindNotify,
		SessionID:   sessionID,
		ProjectName: session.ProjectName,
		Event:       "ready_for_processing",
	}); err != nil {
		log.Error().Err(err).Msg("notify dispatch failed")
	}
	return nil
}

func (s *ConverterService) fail(ctx context.Context, task queue.Task, clip model.ClipRecord, cause error) error {
	reason := fmt.Sprintf("conversion failed: %v", cause)
	clip.Status = model.ClipStatusConversionFailed
	clip.Error = reason
	if err := s.repo.PutClip(ctx, task.SessionID, task.Slot, clip); err != nil {
		return apperrors.Database(err)
	}
	if err := s.repo.MarkFailed(ctx, task.SessionID, model.StatusConversionFailed, reason); err != nil {
		return apperrors.Database(err)
	}
	log.Error().
		Str("session_id", task.SessionID).
		Str("slot", task.Slot).
		Err(cause).
		Msg("clip conversion failed")
	return nil
}
