package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
)

// JobReceipt confirms an accepted processing job.
type JobReceipt struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	TotalVideos int    `json:"total_videos"`
	QueuedAt    string `json:"queued_at"`
}

type JobService struct {
	repo       repository.SessionRepository
	dispatcher queue.Dispatcher
}

func NewJobService(repo repository.SessionRepository, dispatcher queue.Dispatcher) *JobService {
	return &JobService{repo: repo, dispatcher: dispatcher}
}

// Enqueue admits a session into the assembly pipeline. Admission demands
// a converted clip for every suggested shot; the first gap is named in
// the rejection.
func (s *JobService) Enqueue(ctx context.Context, sessionID string) (*JobReceipt, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	if session.Status == model.StatusQueued {
		return nil, apperrors.AlreadyQueued("session is already queued for processing")
	}
	if !session.Status.Admissible() {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("session is %s, cannot queue for processing", session.Status))
	}
	if gap := model.FirstUnconverted(session.Suggestions, session.Clips); gap != 0 {
		return nil, apperrors.NotReady(
			fmt.Sprintf("shot %d has no converted clip yet", gap))
	}

	queued, err := s.repo.MarkQueued(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !queued {
		// Lost the race to a concurrent enqueue.
		return nil, apperrors.AlreadyQueued("session is already queued for processing")
	}

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:        queue.KindCreateSlides,
		SessionID:   sessionID,
		Action:      "stitch_videos",
		ProjectName: session.ProjectName,
		TotalVideos: len(session.Suggestions),
	}); err != nil {
		// No task made it onto the list; revert so a retry can enqueue.
		if _, revertErr := s.repo.AdvanceStatus(ctx, sessionID,
			[]model.SessionStatus{model.StatusQueued}, session.Status); revertErr != nil {
			log.Error().Err(revertErr).Str("session_id", sessionID).Msg("queue rollback failed")
		}
		return nil, apperrors.Queue(err)
	}

	log.Info().
		Str("session_id", sessionID).
		Int("total_videos", len(session.Suggestions)).
		Msg("session queued for processing")

	return &JobReceipt{
		SessionID:   sessionID,
		Status:      string(model.StatusQueued),
		TotalVideos: len(session.Suggestions),
		QueuedAt:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
