package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
)

func slidesFixture() *model.Session {
	session := admissibleFixture()
	session.Status = model.StatusQueued
	session.SourceURL = "https://github.com/acme/acme"
	return session
}

func TestPlanSlides(t *testing.T) {
	session := slidesFixture()
	slides := PlanSlides(session)

	require.Len(t, slides, 4) // title + 2 sections + end

	assert.Equal(t, model.SlideTypeTitle, slides[0].Type)
	assert.Equal(t, 0, slides[0].Order)
	assert.Equal(t, "slides/s-1/title.mp4", slides[0].S3Key)

	assert.Equal(t, model.SlideTypeSection, slides[1].Type)
	assert.Equal(t, 100, slides[1].Order)
	assert.Equal(t, 1, slides[1].VideoSequence)
	assert.Equal(t, 200, slides[2].Order)

	assert.Equal(t, model.SlideTypeEnd, slides[3].Type)
	assert.Equal(t, 999, slides[3].Order)
}

func TestSlideSpecs(t *testing.T) {
	svc := NewSlideService(nil, nil, nil, nil, 3)
	session := slidesFixture()
	slides := PlanSlides(session)

	title := svc.specFor(session, slides[0])
	assert.Equal(t, "acme", title.Heading)
	assert.Equal(t, 3, title.Seconds)

	section := svc.specFor(session, slides[1])
	assert.Equal(t, "Install", section.Heading)
	assert.Equal(t, "Step 1", section.Subheading)

	end := svc.specFor(session, slides[3])
	assert.Equal(t, "Thanks for watching!", end.Heading)
	assert.Equal(t, session.SourceURL, end.Subheading)
}

func TestHandleCreateSlides(t *testing.T) {
	ctx := context.Background()
	task := queue.Task{
		Kind:        queue.KindCreateSlides,
		SessionID:   "s-1",
		Action:      "stitch_videos",
		ProjectName: "acme",
		TotalVideos: 2,
	}

	t.Run("renders deck and hands off to the stitcher", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		processor := new(mockProcessor)
		dispatcher := new(mockDispatcher)
		svc := NewSlideService(repo, store, processor, dispatcher, 3)

		repo.On("FindByID", ctx, "s-1").Return(slidesFixture(), nil)
		processor.On("RenderSlide", ctx, mock.MatchedBy(func(spec media.SlideSpec) bool {
			return spec.Seconds == 3
		}), mock.Anything).Run(writeFileTo(t, 2, 2000)).Return(nil).Times(4)
		store.On("Upload", ctx, mock.Anything, mock.Anything, "video/mp4").Return(nil).Times(4)
		repo.On("SetSlides", ctx, "s-1", mock.MatchedBy(func(slides model.SlideList) bool {
			return len(slides) == 4 && slides[0].Type == model.SlideTypeTitle
		})).Return(nil)
		dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(next queue.Task) bool {
			return next.Kind == queue.KindStitchVideos && next.TotalVideos == 2
		})).Return(nil)

		require.NoError(t, svc.HandleCreateSlides(ctx, task))
		repo.AssertExpectations(t)
		processor.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("drops re-delivered task once past queued", func(t *testing.T) {
		repo := new(mockSessionRepo)
		processor := new(mockProcessor)
		svc := NewSlideService(repo, new(mockStore), processor, new(mockDispatcher), 3)

		session := slidesFixture()
		session.Status = model.StatusSlidesReady
		repo.On("FindByID", ctx, "s-1").Return(session, nil)

		require.NoError(t, svc.HandleCreateSlides(ctx, task))
		processor.AssertNotCalled(t, "RenderSlide", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("render failure fails the session", func(t *testing.T) {
		repo := new(mockSessionRepo)
		processor := new(mockProcessor)
		svc := NewSlideService(repo, new(mockStore), processor, new(mockDispatcher), 3)

		repo.On("FindByID", ctx, "s-1").Return(slidesFixture(), nil)
		processor.On("RenderSlide", ctx, mock.Anything, mock.Anything).Return(assert.AnError)
		repo.On("MarkFailed", ctx, "s-1", model.StatusStitchingFailed, mock.Anything).Return(nil)

		require.NoError(t, svc.HandleCreateSlides(ctx, task))
		repo.AssertExpectations(t)
	})
}
