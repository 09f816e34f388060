package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
)

func converterFixture(slot string, hasAudio bool) *model.Session {
	session := uploadFixture(model.StatusUploading)
	session.Clips[slot] = model.ClipRecord{
		Status: model.ClipStatusValidated,
		S3Key:  "videos/s-1/" + slot + ".mp4",
		Validation: &model.ClipValidation{
			Valid:    true,
			Duration: 30,
			HasAudio: hasAudio,
		},
	}
	return session
}

func TestHandleConvert(t *testing.T) {
	ctx := context.Background()
	task := queue.Task{Kind: queue.KindConvertClip, SessionID: "s-1", Slot: "1"}

	t.Run("normalizes clip and records rendition", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		dispatcher := new(mockDispatcher)
		svc := NewConverterService(repo, store, processor, dispatcher)

		session := converterFixture("1", true)
		// First load runs the conversion, second load is the readiness scan.
		repo.On("FindByID", ctx, "s-1").Return(session, nil)
		store.On("Download", ctx, "videos/s-1/1.mp4", mock.Anything).Return(nil)
		processor.On("Standardize", ctx, mock.Anything, mock.Anything).
			Run(writeFileTo(t, 2, 9000)).Return(nil)
		store.On("Upload", ctx, mock.Anything, "videos/s-1/standardized_1.mp4", "video/mp4").Return(nil)
		repo.On("PutClip", ctx, "s-1", "1", mock.MatchedBy(func(clip model.ClipRecord) bool {
			return clip.Status == model.ClipStatusConverted &&
				clip.Converted != nil &&
				clip.Converted.StandardizedKey == "videos/s-1/standardized_1.mp4" &&
				clip.Converted.OutputResolution == "1920x1080"
		})).Return(nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		// Shot 2 is still pending, so no promotion happens.
		repo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		processor.AssertNotCalled(t, "EnsureAudio", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("adds silent audio to mute clips", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		svc := NewConverterService(repo, store, processor, new(mockDispatcher))

		repo.On("FindByID", ctx, "s-1").Return(converterFixture("1", false), nil)
		store.On("Download", ctx, mock.Anything, mock.Anything).Return(nil)
		processor.On("Standardize", ctx, mock.Anything, mock.Anything).
			Run(writeFileTo(t, 2, 9000)).Return(nil)
		processor.On("EnsureAudio", ctx, mock.Anything, mock.Anything).
			Run(writeFileTo(t, 2, 9500)).Return(nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, "video/mp4").Return(nil)
		repo.On("PutClip", ctx, "s-1", "1", mock.Anything).Return(nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		processor.AssertExpectations(t)
	})

	t.Run("last conversion promotes the session regardless of finish order", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		dispatcher := new(mockDispatcher)
		svc := NewConverterService(repo, store, processor, dispatcher)

		// Shot 2 converted before shot 1; this task finishes shot 1.
		before := converterFixture("1", true)
		before.Clips["2"] = model.ClipRecord{
			Status:    model.ClipStatusConverted,
			Converted: &model.ClipConversion{StandardizedKey: "videos/s-1/standardized_2.mp4"},
		}
		after := uploadFixture(model.StatusUploading)
		after.Clips["1"] = model.ClipRecord{
			Status:    model.ClipStatusConverted,
			Converted: &model.ClipConversion{StandardizedKey: "videos/s-1/standardized_1.mp4"},
		}
		after.Clips["2"] = before.Clips["2"]

		repo.On("FindByID", ctx, "s-1").Return(before, nil).Once()
		store.On("Download", ctx, mock.Anything, mock.Anything).Return(nil)
		processor.On("Standardize", ctx, mock.Anything, mock.Anything).
			Run(writeFileTo(t, 2, 9000)).Return(nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, "video/mp4").Return(nil)
		repo.On("PutClip", ctx, "s-1", "1", mock.Anything).Return(nil)
		repo.On("FindByID", ctx, "s-1").Return(after, nil).Once()
		repo.On("AdvanceStatus", ctx, "s-1",
			[]model.SessionStatus{model.StatusUploading}, model.StatusReadyForProcessing).Return(true, nil)
		dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(next queue.Task) bool {
			return next.Kind == queue.KindNotify && next.Event == "ready_for_processing"
		})).Return(nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		repo.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("re-delivered readiness race loses quietly", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		dispatcher := new(mockDispatcher)
		svc := NewConverterService(repo, store, processor, dispatcher)

		before := converterFixture("1", true)
		before.Clips["2"] = model.ClipRecord{
			Status:    model.ClipStatusConverted,
			Converted: &model.ClipConversion{StandardizedKey: "videos/s-1/standardized_2.mp4"},
		}
		after := uploadFixture(model.StatusReadyForProcessing)
		after.Clips["1"] = model.ClipRecord{Status: model.ClipStatusConverted, Converted: &model.ClipConversion{}}
		after.Clips["2"] = before.Clips["2"]

		repo.On("FindByID", ctx, "s-1").Return(before, nil).Once()
		store.On("Download", ctx, mock.Anything, mock.Anything).Return(nil)
		processor.On("Standardize", ctx, mock.Anything, mock.Anything).
			Run(writeFileTo(t, 2, 9000)).Return(nil)
		store.On("Upload", ctx, mock.Anything, mock.Anything, "video/mp4").Return(nil)
		repo.On("PutClip", ctx, "s-1", "1", mock.Anything).Return(nil)
		repo.On("FindByID", ctx, "s-1").Return(after, nil).Once()
		// Another worker already promoted the session.
		repo.On("AdvanceStatus", ctx, "s-1", mock.Anything, mock.Anything).Return(false, nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("tool failure marks the session conversion_failed", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		svc := NewConverterService(repo, store, processor, new(mockDispatcher))

		repo.On("FindByID", ctx, "s-1").Return(converterFixture("1", true), nil)
		store.On("Download", ctx, mock.Anything, mock.Anything).Return(nil)
		processor.On("Standardize", ctx, mock.Anything, mock.Anything).Return(assert.AnError)
		repo.On("PutClip", ctx, "s-1", "1", mock.MatchedBy(func(clip model.ClipRecord) bool {
			return clip.Status == model.ClipStatusConversionFailed
		})).Return(nil)
		repo.On("MarkFailed", ctx, "s-1", model.StatusConversionFailed, mock.Anything).Return(nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		repo.AssertExpectations(t)
	})

	t.Run("drops task for a clip not in validated state", func(t *testing.T) {
		repo := new(mockSessionRepo)
		svc := NewConverterService(repo, new(mockStore), new(mockProcessor), new(mockDispatcher))

		session := converterFixture("1", true)
		session.Clips["1"] = model.ClipRecord{Status: model.ClipStatusConverted}
		repo.On("FindByID", ctx, "s-1").Return(session, nil)

		require.NoError(t, svc.HandleConvert(ctx, task))
		repo.AssertNotCalled(t, "PutClip", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
