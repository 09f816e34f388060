package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

// TimelineItem is one entry of the assembled demo, already normalized
// to the canonical format.
type TimelineItem struct {
	Order int
	Key   string
	Label string
}

// BuildTimeline interleaves slides and converted clips by their order
// values: title, then per shot its section slide followed by the clip,
// then the closing slide. A shot whose clip is not converted is skipped
// with a warning; only an empty timeline is an error.
func BuildTimeline(session *model.Session) ([]TimelineItem, error) {
	items := make([]TimelineItem, 0, len(session.Slides)+len(session.Suggestions))
	for _, slide := range session.Slides {
		items = append(items, TimelineItem{
			Order: slide.Order,
			Key:   slide.S3Key,
			Label: "slide " + slide.ID,
		})
	}
	for _, shot := range session.Suggestions {
		clip, ok := session.Clips[shot.SlotKey()]
		if !ok || clip.Status != model.ClipStatusConverted || clip.Converted == nil {
			log.Warn().
				Str("session_id", session.ID).
				Int("shot", shot.SequenceNumber).
				Msg("shot has no converted clip, skipping")
			continue
		}
		items = append(items, TimelineItem{
			Order: model.ClipOrder(shot.SequenceNumber),
			Key:   clip.Converted.StandardizedKey,
			Label: fmt.Sprintf("clip %d", shot.SequenceNumber),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	if len(items) == 0 {
		return nil, fmt.Errorf("timeline is empty")
	}
	return items, nil
}

type StitcherService struct {
	repo        repository.SessionRepository
	store       storage.ObjectStore
	processor   media.Processor
	dispatcher  queue.Dispatcher
	downloadTTL time.Duration
}

func NewStitcherService(
	repo repository.SessionRepository,
	store storage.ObjectStore,
	processor media.Processor,
	dispatcher queue.Dispatcher,
	downloadTTL time.Duration,
) *StitcherService {
	return &StitcherService{
		repo:        repo,
		store:       store,
		processor:   processor,
		dispatcher:  dispatcher,
		downloadTTL: downloadTTL,
	}
}

// HandleStitch concatenates the timeline into a single video.
func (s *StitcherService) HandleStitch(ctx context.Context, task queue.Task) error {
	session, err := s.repo.FindByID(ctx, task.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		log.Warn().Str("session_id", task.SessionID).Msg("stitch task for unknown session")
		return nil
	}
	// Stitching is re-entered on task re-delivery after a crash.
	if session.Status != model.StatusSlidesReady && session.Status != model.StatusStitching {
		log.Info().
			Str("session_id", task.SessionID).
			Str("status", string(session.Status)).
			Msg("skipping stitch task")
		return nil
	}

	timeline, err := BuildTimeline(session)
	if err != nil {
		return s.fail(ctx, task.SessionID, err)
	}
	total := len(timeline)

	workdir, err := os.MkdirTemp("", "stitch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workdir)

	var listLines []string
	for i, item := range timeline {
		if err := s.repo.SetStitchProgress(ctx, task.SessionID, i+1, total,
			"downloading "+item.Label); err != nil {
			return apperrors.Database(err)
		}
		localPath := filepath.Join(workdir, fmt.Sprintf("part_%03d.mp4", i))
		if err := s.store.Download(ctx, item.Key, localPath); err != nil {
			return s.fail(ctx, task.SessionID, err)
		}
		listLines = append(listLines, fmt.Sprintf("file '%s'", localPath))
	}

	listPath := filepath.Join(workdir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(strings.Join(listLines, "\n")+"\n"), 0o644); err != nil {
		return err
	}

	if err := s.repo.SetStitchProgress(ctx, task.SessionID, total, total, "concatenating"); err != nil {
		return apperrors.Database(err)
	}

	outPath := filepath.Join(workdir, "stitched.mp4")
	if err := s.processor.Concat(ctx, listPath, outPath); err != nil {
		return s.fail(ctx, task.SessionID, err)
	}

	probe, err := s.processor.Probe(ctx, outPath)
	if err != nil {
		return s.fail(ctx, task.SessionID, err)
	}

	stitchedKey := storage.StitchedKey(task.SessionID)
	if err := s.store.Upload(ctx, outPath, stitchedKey, "video/mp4"); err != nil {
		return apperrors.Storage(err)
	}
	stitchedURL, err := s.store.PresignGet(ctx, stitchedKey, s.downloadTTL)
	if err != nil {
		return apperrors.Storage(err)
	}

	resolution := fmt.Sprintf("%dx%d", probe.Width, probe.Height)
	if err := s.repo.SetStitched(ctx, task.SessionID, stitchedKey, stitchedURL,
		probe.Duration, resolution); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("session_id", task.SessionID).
		Int("items", total).
		Float64("duration", probe.Duration).
		Msg("videos stitched")

	if err := s.dispatcher.Dispatch(ctx, queue.Task{
		Kind:        queue.KindOptimizeVideo,
		SessionID:   task.SessionID,
		ProjectName: task.ProjectName,
	}); err != nil {
		return apperrors.Queue(err)
	}
	return nil
}

func (s *StitcherService) fail(ctx context.Context, sessionID string, cause error) error {
	if err := s.repo.MarkFailed(ctx, sessionID, model.StatusStitchingFailed,
		fmt.Sprintf("stitching failed: %v", cause)); err != nil {
		return apperrors.Database(err)
	}
	log.Error().Str("session_id", sessionID).Err(cause).Msg("stitching failed")
	return nil
}
