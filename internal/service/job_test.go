package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/demoreel/demoreel-server/internal/errors"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
)

func admissibleFixture() *model.Session {
	session := uploadFixture(model.StatusReadyForProcessing)
	session.Clips["1"] = model.ClipRecord{Status: model.ClipStatusConverted, Converted: &model.ClipConversion{}}
	session.Clips["2"] = model.ClipRecord{Status: model.ClipStatusConverted, Converted: &model.ClipConversion{}}
	return session
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("admits a fully converted session", func(t *testing.T) {
		repo := new(mockSessionRepo)
		dispatcher := new(mockDispatcher)
		svc := NewJobService(repo, dispatcher)

		repo.On("FindByID", ctx, "s-1").Return(admissibleFixture(), nil)
		repo.On("MarkQueued", ctx, "s-1").Return(true, nil)
		dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(task queue.Task) bool {
			return task.Kind == queue.KindCreateSlides &&
				task.Action == "stitch_videos" &&
				task.ProjectName == "acme" &&
				task.TotalVideos == 2
		})).Return(nil)

		receipt, err := svc.Enqueue(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "queued", receipt.Status)
		assert.Equal(t, 2, receipt.TotalVideos)
		repo.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("admits while still uploading if every shot converted", func(t *testing.T) {
		repo := new(mockSessionRepo)
		dispatcher := new(mockDispatcher)
		svc := NewJobService(repo, dispatcher)

		session := admissibleFixture()
		session.Status = model.StatusUploading
		repo.On("FindByID", ctx, "s-1").Return(session, nil)
		repo.On("MarkQueued", ctx, "s-1").Return(true, nil)
		dispatcher.On("Dispatch", ctx, mock.Anything).Return(nil)

		_, err := svc.Enqueue(ctx, "s-1")
		require.NoError(t, err)
	})

	t.Run("names the first unconverted shot", func(t *testing.T) {
		repo := new(mockSessionRepo)
		svc := NewJobService(repo, new(mockDispatcher))

		session := admissibleFixture()
		session.Clips["2"] = model.ClipRecord{Status: model.ClipStatusValidated}
		repo.On("FindByID", ctx, "s-1").Return(session, nil)

		_, err := svc.Enqueue(ctx, "s-1")
		assert.Equal(t, apperrors.ErrCodeNotReady, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "shot 2")
		repo.AssertNotCalled(t, "MarkQueued", mock.Anything, mock.Anything)
	})

	t.Run("rejects terminal and queued sessions", func(t *testing.T) {
		for status, code := range map[model.SessionStatus]apperrors.ErrorCode{
			model.StatusQueued:   apperrors.ErrCodeAlreadyQueued,
			model.StatusComplete: apperrors.ErrCodeInvalidState,
			model.StatusStitched: apperrors.ErrCodeInvalidState,
		} {
			repo := new(mockSessionRepo)
			svc := NewJobService(repo, new(mockDispatcher))

			session := admissibleFixture()
			session.Status = status
			repo.On("FindByID", ctx, "s-1").Return(session, nil)

			_, err := svc.Enqueue(ctx, "s-1")
			assert.Equal(t, code, apperrors.GetCode(err), string(status))
		}
	})

	t.Run("loses the enqueue race", func(t *testing.T) {
		repo := new(mockSessionRepo)
		dispatcher := new(mockDispatcher)
		svc := NewJobService(repo, dispatcher)

		repo.On("FindByID", ctx, "s-1").Return(admissibleFixture(), nil)
		repo.On("MarkQueued", ctx, "s-1").Return(false, nil)

		_, err := svc.Enqueue(ctx, "s-1")
		assert.Equal(t, apperrors.ErrCodeAlreadyQueued, apperrors.GetCode(err))
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("dispatch failure rolls the status back", func(t *testing.T) {
		repo := new(mockSessionRepo)
		dispatcher := new(mockDispatcher)
		svc := NewJobService(repo, dispatcher)

		repo.On("FindByID", ctx, "s-1").Return(admissibleFixture(), nil)
		repo.On("MarkQueued", ctx, "s-1").Return(true, nil)
		dispatcher.On("Dispatch", ctx, mock.Anything).Return(assert.AnError)
		repo.On("AdvanceStatus", ctx, "s-1",
			[]model.SessionStatus{model.StatusQueued}, model.StatusReadyForProcessing).
			Return(true, nil)

		_, err := svc.Enqueue(ctx, "s-1")
		assert.Equal(t, apperrors.ErrCodeQueue, apperrors.GetCode(err))
		repo.AssertExpectations(t)
	})

	t.Run("unknown session", func(t *testing.T) {
		repo := new(mockSessionRepo)
		svc := NewJobService(repo, new(mockDispatcher))
		repo.On("FindByID", ctx, "ghost").Return(nil, nil)

		_, err := svc.Enqueue(ctx, "ghost")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}
