package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

type CleanupService struct {
	repo            repository.SessionRepository
	store           storage.ObjectStore
	retention       time.Duration
	failedRetention time.Duration
}

func NewCleanupService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	retention time.Duration,
	failedRetention time.Duration,
) *CleanupService {
	return &CleanupService{
		repo:            repo,
		store:           store,
		retention:       retention,
		failedRetention: failedRetention,
	}
}

// CleanupIntermediates removes everything a finished session no longer
// needs: raw and standardized clips, slide clips, and stitch scratch.
// Deliverables under the demo prefix stay, and so does the record.
func (s *CleanupService) CleanupIntermediates(ctx context.Context, sessionID string) error {
	var doomed []string

	for _, prefix := range []string{storage.VideoPrefix(sessionID), storage.SlidePrefix(sessionID)} {
		objects, err := s.store.List(ctx, prefix)
		if err != nil {
			return apperrors.Storage(err)
		}
		for _, obj := range objects {
			doomed = append(doomed, obj.Key)
		}
	}

	demoObjects, err := s.store.List(ctx, storage.DemoPrefix(sessionID))
	if err != nil {
		return apperrors.Storage(err)
	}
	for _, obj := range demoObjects {
		if !storage.IsFinal(obj.Key) {
			doomed = append(doomed, obj.Key)
		}
	}

	if len(doomed) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, doomed); err != nil {
		return apperrors.Storage(err)
	}

	log.Info().
		Str("session_id", sessionID).
		Int("objects", len(doomed)).
		Msg("intermediates cleaned up")
	return nil
}

// CleanupSession runs an on-demand cleanup for one session. Mode
// "intermediate" keeps the deliverables and the record, "complete"
// removes everything including the session row.
func (s *CleanupService) CleanupSession(ctx context.Context, sessionID, mode string) error {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.NotFound("session")
	}

	switch mode {
	case "intermediate":
		return s.CleanupIntermediates(ctx, sessionID)
	case "complete":
		return s.purge(ctx, sessionID)
	default:
		return apperrors.InvalidInput("mode", "must be \"intermediate\" or \"complete\"")
	}
}

// RunScheduled purges sessions past their retention window, deliverables
// included, and reports how many were removed.
func (s *CleanupService) RunScheduled(ctx context.Context) (int, error) {
	now := time.Now()
	candidates, err := s.repo.ListCleanupCandidates(ctx,
		now.Add(-s.retention), now.Add(-s.failedRetention))
	if err != nil {
		return 0, apperrors.Database(err)
	}

	purged := 0
	for _, session := range candidates {
		if err := s.purge(ctx, session.ID); err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("session purge failed")
			continue
		}
		purged++
	}

	if purged > 0 {
		log.Info().Int("sessions", purged).Msg("expired sessions purged")
	}
	return purged, nil
}

func (s *CleanupService) purge(ctx context.Context, sessionID string) error {
	prefixes := []string{
		storage.VideoPrefix(sessionID),
		storage.SlidePrefix(sessionID),
		storage.DemoPrefix(sessionID),
	}
	var doomed []string
	for _, prefix := range prefixes {
		objects, err := s.store.List(ctx, prefix)
		if err != nil {
			return apperrors.Storage(err)
		}
		for _, obj := range objects {
			doomed = append(doomed, obj.Key)
		}
	}
	if len(doomed) > 0 {
		if err := s.store.Delete(ctx, doomed); err != nil {
			return apperrors.Storage(err)
		}
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}
