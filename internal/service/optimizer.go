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

type OptimizerService struct {
	repo        repository.SessionRepository
	store       storage.ObjectStore
	processor   media.Processor
	dispatcher  queue.Dispatcher
	cleanup     *CleanupService
	downloadTTL time.Duration
}

func NewOptimizerService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	processor media.Processor,
	dispatcher queue.Dispatcher,
	cleanup *CleanupService,
	downloadTTL time.Duration,
) *OptimizerService {
	return &OptimizerService{
		repo:        repo,
		store:       store,
		processor:   processor,
		dispatcher:  dispatcher,
		cleanup:     cleanup,
		downloadTTL: downloadTTL,
	}
}

// HandleOptimize encodes the delivery renditions, captures a thumbnail,
// completes the session, and sweeps the intermediates.
func (s *OptimizerService) HandleOptimize(ctx context.Context, task queue.Task) error {
	session, err := s.repo.FindByID(ctx, task.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("session_id", task.SessionID).Msg("optimize task for unknown session")
		return nil
	}
	if session.Status != model.StatusStitched && session.Status != model.StatusOptimizing {
		log.Info().
			Str("session_id", task.SessionID).
			Str("status", string(session.Status)).
			Msg("skipping optimize task")
		return nil
	}
	if session.StitchedVideoKey == "" {
		return s.fail(ctx, task.SessionID, fmt.Errorf("no stitched video recorded"))
	}

	total := len(media.Variants)
	if err := s.repo.SetOptimizeProgress(ctx, task.SessionID, 0, total,
		"downloading stitched video"); err != nil {
		return apperrors.Database(err)
	}

	workdir, err := os.MkdirTemp("", "optimize-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	stitchedPath := filepath.Join(workdir, "stitched.mp4")
	if err := s.store.Download(ctx, session.StitchedVideoKey, stitchedPath); err != nil {
		return apperrors.Storage(err)
	}

	primary := media.PrimaryVariant(media.Variants)
	localByName := make(map[string]string, len(media.Variants))
	urlByName := make(map[string]string, len(media.Variants))
	for i, variant := range media.Variants {
		if err := s.repo.SetOptimizeProgress(ctx, task.SessionID, i+1, total,
			"encoding "+variant.Name); err != nil {
			return apperrors.Database(err)
		}
		outPath := filepath.Join(workdir, "final_"+variant.Name+".mp4")
		if err := s.processor.Optimize(ctx, stitchedPath, outPath, variant); err != nil {
			return s.fail(ctx, task.SessionID, err)
		}
		key := storage.FinalKey(task.SessionID, variant.Name)
		if err := s.store.Upload(ctx, outPath, key, "video/mp4"); err != nil {
			return apperrors.Storage(err)
		}
		url, err := s.store.PresignGet(ctx, key, s.downloadTTL)
		if err != nil {
			return apperrors.Storage(err)
		}
		localByName[variant.Name] = outPath
		urlByName[variant.Name] = url
	}

	if err := s.repo.SetOptimizeProgress(ctx, task.SessionID, total, total,
		"capturing thumbnail"); err != nil {
		return apperrors.Database(err)
	}
	primaryPath := localByName[primary.Name]
	thumbPath := filepath.Join(workdir, "thumbnail.jpg")
	if err := s.processor.Thumbnail(ctx, primaryPath, thumbPath); err != nil {
		return s.fail(ctx, task.SessionID, err)
	}
	thumbKey := storage.ThumbnailKey(task.SessionID)
	if err := s.store.Upload(ctx, thumbPath, thumbKey, "image/jpeg"); err != nil {
		return apperrors.Storage(err)
	}
	thumbURL, err := s.store.PresignGet(ctx, thumbKey, s.downloadTTL)
	if err != nil {
		return apperrors.Storage(err)
	}

	probe, err := s.processor.Probe(ctx, primaryPath)
	if err != nil {
		return s.fail(ctx, task.SessionID, err)
	}
	primaryInfo, err := os.Stat(primaryPath)
	if err != nil {
		return err
	}

	result := model.FinalResult{
		Key:          storage.FinalKey(task.SessionID, primary.Name),
		Duration:     probe.Duration,
		Size:         primaryInfo.Size(),
		DemoURL:      urlByName[primary.Name],
		DemoURL720p:  urlByName["720p"],
		DemoURL1080p: urlByName["1080p"],
		ThumbnailURL: thumbURL,
	}
	if err := s.repo.SetComplete(ctx, task.SessionID, result); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", task.SessionID).
		Float64("duration", probe.Duration).
		Int64("size", primaryInfo.Size()).
		Msg("demo complete")

	// Intermediates are swept best effort; the deliverables are safe.
	if err := s.cleanup.CleanupIntermediates(ctx, task.SessionID); err != nil {
		log.Error().Err(err).Str("session_id", task.SessionID).Msg("intermediate cleanup failed")
	}

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:        queue.KindNotify,
		SessionID:   task.SessionID,
		ProjectName: session.ProjectName,
		Event:       "complete",
	}); err != nil {
		log.Error().Err(err).Msg("notify dispatch failed")
	}
	return nil
}

func (s *OptimizerService) fail(ctx context.Context, sessionID string, cause error) error {
	if err := s.repo.MarkFailed(ctx, sessionID, model.StatusOptimizationFailed,
		fmt.Sprintf("optimization failed: %v", cause)); err != nil {
		return apperrors.Database(err)
	}
	log.Error().Str("session_id", sessionID).Err(cause).Msg("optimization failed")
	return nil
}
