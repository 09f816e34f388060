package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/demoreel/demoreel-server/internal/config"
	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

// ClipPolicy is the acceptance envelope for uploaded clips.
type ClipPolicy struct {
	MinSeconds int
	MaxSeconds int
	MinBytes   int64
	MaxBytes   int64
}

func PolicyFromConfig(cfg *config.Config) ClipPolicy {
	return ClipPolicy{
		MinSeconds: cfg.MinClipSeconds,
		MaxSeconds: cfg.MaxClipSeconds,
		MinBytes:   cfg.MinClipBytes,
		MaxBytes:   cfg.MaxClipBytes,
	}
}

// Check returns the first policy violation, or "" when the clip passes.
func (p ClipPolicy) Check(probe *media.ProbeResult, size int64) string {
	if size < p.MinBytes {
		return fmt.Sprintf("file too small: %d bytes (minimum %d)", size, p.MinBytes)
	}
	if size > p.MaxBytes {
		return fmt.Sprintf("file too large: %d bytes (maximum %d)", size, p.MaxBytes)
	}
	if probe.Duration < float64(p.MinSeconds) {
		return fmt.Sprintf("clip too short: %.1fs (minimum %ds)", probe.Duration, p.MinSeconds)
	}
	if probe.Duration > float64(p.MaxSeconds) {
		return fmt.Sprintf("clip too long: %.1fs (maximum %ds)", probe.Duration, p.MaxSeconds)
	}
	if probe.Width < config.MinClipWidth || probe.Height < config.MinClipHeight {
		return fmt.Sprintf("resolution too low: %dx%d (minimum %dx%d)",
			probe.Width, probe.Height, config.MinClipWidth, config.MinClipHeight)
	}
	if probe.Width > config.MaxClipWidth || probe.Height > config.MaxClipHeight {
		return fmt.Sprintf("resolution too high: %dx%d (maximum %dx%d)",
			probe.Width, probe.Height, config.MaxClipWidth, config.MaxClipHeight)
	}
	return ""
}

type ValidatorService struct {
	repo       repository.SessionRepository
	store      storage.ObjectStore
	processor  media.Processor
	dispatcher queue.Dispatcher
	policy     ClipPolicy
}

func NewValidatorService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	processor media.Processor,
	dispatcher queue.Dispatcher,
	policy ClipPolicy,
) *ValidatorService {
	return &ValidatorService{
		repo:       repo,
		store:      store,
		processor:  processor,
		dispatcher: dispatcher,
		policy:     policy,
	}
}

// HandleValidate probes an uploaded clip and either admits it to
// conversion or records the rejection. A rejected clip leaves the
// session open so the slot can be re-uploaded.
func (s *ValidatorService) HandleValidate(ctx context.Context, task queue.Task) error {
	session, err := s.repo.FindByID(ctx, task.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("session_id", task.SessionID).Msg("validate task for unknown session")
		return nil
	}
	clip, ok := session.Clips[task.Slot]
	if !ok {
		log.Warn().Str("session_id", task.SessionID).Str("slot", task.Slot).Msg("validate task for unknown clip")
		return nil
	}
	// Re-delivered task after the clip already moved on.
	if clip.Status != model.ClipStatusUploaded {
		return nil
	}

	workdir, err := os.MkdirTemp("", "validate-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	localPath := filepath.Join(workdir, "clip"+filepath.Ext(clip.S3Key))
	if err := s.store.Download(ctx, clip.S3Key, localPath); err != nil {
		return apperrors.Storage(err)
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	probe, probeErr := s.processor.Probe(ctx, localPath)
	if probeErr != nil {
		return s.reject(ctx, task, clip, "not a readable video file")
	}
	if reason := s.policy.Check(probe, info.Size()); reason != "" {
		return s.reject(ctx, task, clip, reason)
	}

	clip.Status = model.ClipStatusValidated
	clip.FileSize = info.Size()
	clip.Error = ""
	clip.Validation = &model.ClipValidation{
		Valid:    true,
		Duration: probe.Duration,
		Width:    probe.Width,
		Height:   probe.Height,
		Codec:    probe.Codec,
		FPS:      probe.FPS,
		FileSize: info.Size(),
		HasAudio: probe.HasAudio,
		Bitrate:  probe.Bitrate,
	}
	if err := s.repo.PutClip(ctx, task.SessionID, task.Slot, clip); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", task.SessionID).
		Str("slot", task.Slot).
		Float64("duration", probe.Duration).
		Str("codec", probe.Codec).
		Msg("clip validated")

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:      queue.KindConvertClip,
		SessionID: task.SessionID,
		Slot:      task.Slot,
	}); err != nil {
		return apperrors.Queue(err)
	}
	return nil
}

func (s *ValidatorService) reject(ctx context.Context, task queue.Task, clip model.ClipRecord, reason string) error {
	clip.Status = model.ClipStatusValidationFailed
	clip.Error = reason
	clip.Validation = &model.ClipValidation{Valid: false, Error: reason}
	if err := s.repo.PutClip(ctx, task.SessionID, task.Slot, clip); err != nil {
		return apperrors.Database(err)
	}

	log.Warn().
		Str("session_id", task.SessionID).
		Str("slot", task.Slot).
		Str("reason", reason).
		Msg("clip rejected")

	// Best effort; the rejection itself is already recorded.
	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:      queue.KindNotify,
		SessionID: task.SessionID,
		Event:     "clip_rejected",
		Slot:      task.Slot,
		Detail:    reason,
	}); err != nil {
		log.Error().Err(err).Msg("notify dispatch failed")
	}
	return nil
}
