package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

type SlideService struct {
	repo         repository.SessionRepository
	store        storage.ObjectStore
	processor    media.Processor
	dispatcher   queue.Dispatcher
	slideSeconds int
}

func NewSlideService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	processor media.Processor,
	dispatcher queue.Dispatcher,
	slideSeconds int,
) *SlideService {
	return &SlideService{
		repo:         repo,
		store:        store,
		processor:    processor,
		dispatcher:   dispatcher,
		slideSeconds: slideSeconds,
	}
}

// PlanSlides lays out the deck for a session: a title card, one section
// card per suggested shot, and a closing card.
func PlanSlides(session *model.Session) []model.SlideRecord {
	slides := make([]model.SlideRecord, 0, len(session.Suggestions)+2)
	slides = append(slides, model.SlideRecord{
		ID:    "title",
		Type:  model.SlideTypeTitle,
		S3Key: storage.SlideKey(session.ID, "title"),
		Order: model.SlideOrderTitle,
	})
	for _, shot := range session.Suggestions {
		id := fmt.Sprintf("section_%d", shot.SequenceNumber)
		slides = append(slides, model.SlideRecord{
			ID:            id,
			Type:          model.SlideTypeSection,
			S3Key:         storage.SlideKey(session.ID, id),
			Order:         model.SectionOrder(shot.SequenceNumber),
			VideoSequence: shot.SequenceNumber,
		})
	}
	slides = append(slides, model.SlideRecord{
		ID:    "end",
		Type:  model.SlideTypeEnd,
		S3Key: storage.SlideKey(session.ID, "end"),
		Order: model.SlideOrderEnd,
	})
	return slides
}

func (s *SlideService) specFor(session *model.Session, slide model.SlideRecord) media.SlideSpec {
	spec := media.SlideSpec{Seconds: s.slideSeconds}
	switch slide.Type {
	case model.SlideTypeTitle:
		spec.Heading = session.ProjectName
		spec.Subheading = "Demo Video"
	case model.SlideTypeEnd:
		spec.Heading = "Thanks for watching!"
		spec.Subheading = session.SourceURL
	default:
		for _, shot := range session.Suggestions {
			if shot.SequenceNumber == slide.VideoSequence {
				spec.Heading = shot.Title
				spec.Subheading = fmt.Sprintf("Step %d", shot.SequenceNumber)
				break
			}
		}
	}
	return spec
}

// HandleCreateSlides renders the deck and advances the session. Tasks
// re-delivered after the slides already exist are dropped.
func (s *SlideService) HandleCreateSlides(ctx context.Context, task queue.Task) error {
	session, err := s.repo.FindByID(ctx, task.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("session_id", task.SessionID).Msg("slides task for unknown session")
		return nil
	}
	if session.Status != model.StatusQueued {
		log.Info().
			Str("session_id", task.SessionID).
			Str("status", string(session.Status)).
			Msg("skipping slides task, session already past queued")
		return nil
	}

	workdir, err := os.MkdirTemp("", "slides-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	slides := PlanSlides(session)
	for _, slide := range slides {
		localPath := filepath.Join(workdir, slide.ID+".mp4")
		if err := s.processor.RenderSlide(ctx, s.specFor(session, slide), localPath); err != nil {
			return s.fail(ctx, task.SessionID, err)
		}
		if err := s.store.Upload(ctx, localPath, slide.S3Key, "video/mp4"); err != nil {
			return apperrors.Storage(err)
		}
	}

	if err := s.repo.SetSlides(ctx, task.SessionID, slides); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", task.SessionID).
		Int("slides", len(slides)).
		Msg("slides rendered")

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:        queue.KindStitchVideos,
		SessionID:   task.SessionID,
		ProjectName: task.ProjectName,
		TotalVideos: task.TotalVideos,
	}); err != nil {
		return apperrors.Queue(err)
	}
	return nil
}

func (s *SlideService) fail(ctx context.Context, sessionID string, cause error) error {
	if err := s.repo.MarkFailed(ctx, sessionID, model.StatusStitchingFailed,
		fmt.Sprintf("slide generation failed: %v", cause)); err != nil {
		return apperrors.Database(err)
	}
	log.Error().Str("session_id", sessionID).Err(cause).Msg("slide generation failed")
	return nil
}
