package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/repository"
)

// CreateSessionInput is the upstream hand-off: an analyzed repository
// and its recording plan.
type CreateSessionInput struct {
	ProjectName string
	Owner       string
	SourceURL   string
	Suggestions []model.Shot
}

type SessionService struct {
	repo       repository.SessionRepository
	sessionTTL time.Duration
}

func NewSessionService(repo repository.SessionRepository, sessionTTL time.Duration) *SessionService {
	return &SessionService{repo: repo, sessionTTL: sessionTTL}
}

func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	if input.ProjectName == "" {
		return nil, apperrors.MissingRequired("project_name")
	}
	if len(input.Suggestions) == 0 {
		return nil, apperrors.InvalidInput("suggestions", "at least one suggested shot is required")
	}

	seen := make(map[int]bool, len(input.Suggestions))
	for _, shot := range input.Suggestions {
		if shot.SequenceNumber <= 0 {
			return nil, apperrors.InvalidInput("suggestions", "sequence numbers must be positive")
		}
		if seen[shot.SequenceNumber] {
			return nil, apperrors.InvalidInput("suggestions", "duplicate sequence number")
		}
		if shot.Title == "" {
			return nil, apperrors.MissingRequired("shot title")
		}
		seen[shot.SequenceNumber] = true
	}

	session, err := s.repo.Create(ctx, model.CreateSessionParams{
		ID:          uuid.NewString(),
		ProjectName: input.ProjectName,
		Owner:       input.Owner,
		SourceURL:   input.SourceURL,
		Suggestions: input.Suggestions,
		ExpiresAt:   time.Now().Add(s.sessionTTL),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("session_id", session.ID).
		Str("project", session.ProjectName).
		Int("shots", len(session.Suggestions)).
		Msg("session created")
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	return session, nil
}
