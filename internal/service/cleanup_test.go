package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/storage"
)

func TestCleanupIntermediates(t *testing.T) {
	ctx := context.Background()

	t.Run("removes everything except deliverables", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		svc := NewCleanupService(repo, store, 30*24*time.Hour, 7*24*time.Hour)

		store.On("List", ctx, "videos/s-1/").Return([]storage.ObjectInfo{
			{Key: "videos/s-1/1.mp4"},
			{Key: "videos/s-1/standardized_1.mp4"},
		}, nil)
		store.On("List", ctx, "slides/s-1/").Return([]storage.ObjectInfo{
			{Key: "slides/s-1/title.mp4"},
			{Key: "slides/s-1/end.mp4"},
		}, nil)
		store.On("List", ctx, "demos/s-1/").Return([]storage.ObjectInfo{
			{Key: "demos/s-1/stitched.mp4"},
			{Key: "demos/s-1/final_720p.mp4"},
			{Key: "demos/s-1/final_thumbnail.jpg"},
		}, nil)
		store.On("Delete", ctx, []string{
			"videos/s-1/1.mp4",
			"videos/s-1/standardized_1.mp4",
			"slides/s-1/title.mp4",
			"slides/s-1/end.mp4",
			"demos/s-1/stitched.mp4",
		}).Return(nil)

		require.NoError(t, svc.CleanupIntermediates(ctx, "s-1"))
		store.AssertExpectations(t)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("nothing to delete is fine", func(t *testing.T) {
		store := new(mockStore)
		svc := NewCleanupService(new(mockSessionRepo), store, time.Hour, time.Hour)

		store.On("List", ctx, mock.Anything).Return([]storage.ObjectInfo{}, nil)

		require.NoError(t, svc.CleanupIntermediates(ctx, "s-1"))
		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestCleanupSession(t *testing.T) {
	ctx := context.Background()

	t.Run("complete mode purges the record too", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		svc := NewCleanupService(repo, store, time.Hour, time.Hour)

		repo.On("FindByID", ctx, "s-1").Return(&model.Session{ID: "s-1"}, nil)
		store.On("List", ctx, mock.Anything).Return([]storage.ObjectInfo{}, nil)
		repo.On("Delete", ctx, "s-1").Return(nil)

		require.NoError(t, svc.CleanupSession(ctx, "s-1", "complete"))
		repo.AssertExpectations(t)
	})

	t.Run("intermediate mode keeps the record", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		svc := NewCleanupService(repo, store, time.Hour, time.Hour)

		repo.On("FindByID", ctx, "s-1").Return(&model.Session{ID: "s-1"}, nil)
		store.On("List", ctx, mock.Anything).Return([]storage.ObjectInfo{}, nil)

		require.NoError(t, svc.CleanupSession(ctx, "s-1", "intermediate"))
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("unknown session", func(t *testing.T) {
		repo := new(mockSessionRepo)
		svc := NewCleanupService(repo, new(mockStore), time.Hour, time.Hour)

		repo.On("FindByID", ctx, "ghost").Return(nil, nil)

		err := svc.CleanupSession(ctx, "ghost", "complete")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("unknown mode", func(t *testing.T) {
		repo := new(mockSessionRepo)
		svc := NewCleanupService(repo, new(mockStore), time.Hour, time.Hour)

		repo.On("FindByID", ctx, "s-1").Return(&model.Session{ID: "s-1"}, nil)

		err := svc.CleanupSession(ctx, "s-1", "partial")
		assert.ErrorContains(t, err, "mode")
	})
}

func TestRunScheduled(t *testing.T) {
	ctx := context.Background()

	t.Run("purges expired sessions with their objects", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		svc := NewCleanupService(repo, store, 30*24*time.Hour, 7*24*time.Hour)

		repo.On("ListCleanupCandidates", ctx,
			mock.MatchedBy(func(cutoff time.Time) bool {
				return time.Since(cutoff) > 29*24*time.Hour
			}),
			mock.MatchedBy(func(cutoff time.Time) bool {
				age := time.Since(cutoff)
				return age > 6*24*time.Hour && age < 8*24*time.Hour
			}),
		).Return([]model.Session{{ID: "old-1"}, {ID: "old-2"}}, nil)

		for _, id := range []string{"old-1", "old-2"} {
			store.On("List", ctx, "videos/"+id+"/").Return([]storage.ObjectInfo{{Key: "videos/" + id + "/1.mp4"}}, nil)
			store.On("List", ctx, "slides/"+id+"/").Return([]storage.ObjectInfo{}, nil)
			store.On("List", ctx, "demos/"+id+"/").Return([]storage.ObjectInfo{{Key: "demos/" + id + "/final_720p.mp4"}}, nil)
			store.On("Delete", ctx, []string{"videos/" + id + "/1.mp4", "demos/" + id + "/final_720p.mp4"}).Return(nil)
			repo.On("Delete", ctx, id).Return(nil)
		}

		purged, err := svc.RunScheduled(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, purged)
		repo.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("a failing purge does not stop the sweep", func(t *testing.T) {
		repo := new(mockSessionRepo)
		store := new(mockStore)
		svc := NewCleanupService(repo, store, time.Hour, time.Hour)

		repo.On("ListCleanupCandidates", ctx, mock.Anything, mock.Anything).
			Return([]model.Session{{ID: "bad"}, {ID: "good"}}, nil)
		store.On("List", ctx, "videos/bad/").Return(nil, assert.AnError)
		store.On("List", ctx, mock.MatchedBy(func(prefix string) bool {
			return prefix != "videos/bad/"
		})).Return([]storage.ObjectInfo{}, nil)
		repo.On("Delete", ctx, "good").Return(nil)

		purged, err := svc.RunScheduled(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, purged)
		repo.AssertNotCalled(t, "Delete", ctx, "bad")
	})
}
