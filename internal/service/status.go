package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/repository"
)

// totalSteps spans the whole pipeline as shown to clients.
const totalSteps = 7

// ClipState is the per-slot view in the status projection.
type ClipState struct {
	SequenceNumber int    `json:"sequence_number"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// StatusProjection is the read model clients poll.
type StatusProjection struct {
	SessionID   string      `json:"session_id"`
	ProjectName string      `json:"project_name"`
	Status      string      `json:"status"`
	Percent     int         `json:"percent"`
	Step        int         `json:"step"`
	TotalSteps  int         `json:"total_steps"`
	Message     string      `json:"message"`
	Clips       []ClipState `json:"clips"`

	CurrentItem int    `json:"current_item,omitempty"`
	TotalItems  int    `json:"total_items,omitempty"`
	Detail      string `json:"detail,omitempty"`

	// Seconds since the session was created, frozen at completion.
	ElapsedSeconds int64 `json:"elapsed_seconds,omitempty"`

	DemoURL      string  `json:"demo_url,omitempty"`
	DemoURL720p  string  `json:"demo_url_720p,omitempty"`
	DemoURL1080p string  `json:"demo_url_1080p,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Duration     float64 `json:"duration,omitempty"`

	Error string `json:"error,omitempty"`
}

type statusRow struct {
	percent int
	step    int
	message string
}

var statusTable = map[model.SessionStatus]statusRow{
	model.StatusReady:              {10, 1, "Waiting for clip uploads"},
	model.StatusUploading:          {20, 1, "Uploading clips"},
	model.StatusReadyForProcessing: {50, 2, "All clips ready, waiting to be queued"},
	model.StatusQueued:             {55, 3, "Queued for processing"},
	model.StatusSlidesReady:        {60, 4, "Slides generated"},
	model.StatusStitching:          {70, 5, "Stitching videos"},
	model.StatusStitched:           {80, 6, "Videos stitched"},
	model.StatusOptimizing:         {90, 7, "Optimizing final video"},
	model.StatusComplete:           {100, 7, "Demo video ready"},
}

type StatusService struct {
	repo repository.SessionRepository
}

func NewStatusService(repo repository.SessionRepository) *StatusService {
	return &StatusService{repo: repo}
}

func (s *StatusService) Get(ctx context.Context, sessionID string) (*StatusProjection, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	return Project(session), nil
}

// Project collapses a session record into the client-facing view.
func Project(session *model.Session) *StatusProjection {
	p := &StatusProjection{
		SessionID:   session.ID,
		ProjectName: session.ProjectName,
		Status:      string(session.Status),
		TotalSteps:  totalSteps,
		Clips:       clipStates(session),
	}

	switch {
	case session.Status.IsFailed():
		p.Percent = 0
		p.Step = failedStep(session.Status)
		p.Message = "Processing failed"
		p.Error = session.ErrorMessage
	default:
		row, known := statusTable[session.Status]
		if !known {
			row = statusRow{0, 0, "Unknown status"}
		}
		p.Percent = row.percent
		p.Step = row.step
		p.Message = row.message
	}

	if session.Status == model.StatusUploading {
		uploaded := model.UploadedCount(session.Clips)
		total := len(session.Suggestions)
		if total > 0 {
			p.Percent = 20 + uploaded*20/total
		}
		p.Message = fmt.Sprintf("Uploading clips (%d of %d)", uploaded, total)
	}

	if (session.Status == model.StatusStitching || session.Status == model.StatusOptimizing) &&
		session.TotalItems > 0 {
		p.CurrentItem = session.CurrentItem
		p.TotalItems = session.TotalItems
		p.Detail = session.ProcessingStep
	}

	if !session.CreatedAt.IsZero() {
		end := time.Now()
		if session.CompletedAt != nil {
			end = *session.CompletedAt
		}
		p.ElapsedSeconds = int64(end.Sub(session.CreatedAt).Seconds())
	}

	if session.Status == model.StatusComplete {
		p.DemoURL = session.DemoURL
		p.DemoURL720p = session.DemoURL720p
		p.DemoURL1080p = session.DemoURL1080p
		p.ThumbnailURL = session.ThumbnailURL
		p.Duration = session.FinalVideoDuration
	}

	return p
}

// failedStep maps a failure to the step it happened in.
func failedStep(status model.SessionStatus) int {
	switch status {
	case model.StatusValidationFailed:
		return 1
	case model.StatusConversionFailed:
		return 2
	case model.StatusStitchingFailed:
		return 5
	case model.StatusOptimizationFailed:
		return 7
	}
	return 0
}

func clipStates(session *model.Session) []ClipState {
	states := make([]ClipState, 0, len(session.Suggestions))
	for _, shot := range session.Suggestions {
		state := ClipState{
			SequenceNumber: shot.SequenceNumber,
			Title:          shot.Title,
			Status:         "pending",
		}
		if clip, ok := session.Clips[shot.SlotKey()]; ok {
			state.Status = string(clip.Status)
			state.Error = clip.Error
		}
		states = append(states, state)
	}
	return states
}
