package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/model"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/storage"
)

// Mock repositories

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) AdvanceStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) PutClip(ctx context.Context, id string, slot string, clip model.ClipRecord) error {
	args := m.Called(ctx, id, slot, clip)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkQueued(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) SetSlides(ctx context.Context, id string, slides model.SlideList) error {
	args := m.Called(ctx, id, slides)
	return args.Error(0)
}

func (m *mockSessionRepo) SetStitchProgress(ctx context.Context, id string, current, total int, step string) error {
	args := m.Called(ctx, id, current, total, step)
	return args.Error(0)
}

func (m *mockSessionRepo) SetStitched(ctx context.Context, id string, key, url string, duration float64, resolution string) error {
	args := m.Called(ctx, id, key, url, duration, resolution)
	return args.Error(0)
}

func (m *mockSessionRepo) SetOptimizeProgress(ctx context.Context, id string, current, total int, step string) error {
	args := m.Called(ctx, id, current, total, step)
	return args.Error(0)
}

func (m *mockSessionRepo) SetComplete(ctx context.Context, id string, result model.FinalResult) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkFailed(ctx context.Context, id string, status model.SessionStatus, message string) error {
	args := m.Called(ctx, id, status, message)
	return args.Error(0)
}

func (m *mockSessionRepo) ListCleanupCandidates(ctx context.Context, completedBefore, failedBefore time.Time) ([]model.Session, error) {
	args := m.Called(ctx, completedBefore, failedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

// Mock object store

type mockStore struct {
	mock.Mock
}

func (m *mockStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, contentType, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Download(ctx context.Context, key, localPath string) error {
	args := m.Called(ctx, key, localPath)
	return args.Error(0)
}

func (m *mockStore) Upload(ctx context.Context, localPath, key, contentType string) error {
	args := m.Called(ctx, localPath, key, contentType)
	return args.Error(0)
}

func (m *mockStore) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ObjectInfo), args.Error(1)
}

func (m *mockStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.ObjectInfo), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// Mock media processor

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.ProbeResult), args.Error(1)
}

func (m *mockProcessor) Standardize(ctx context.Context, inPath, outPath string) error {
	args := m.Called(ctx, inPath, outPath)
	return args.Error(0)
}

func (m *mockProcessor) RenderSlide(ctx context.Context, spec media.SlideSpec, outPath string) error {
	args := m.Called(ctx, spec, outPath)
	return args.Error(0)
}

func (m *mockProcessor) EnsureAudio(ctx context.Context, inPath, outPath string) error {
	args := m.Called(ctx, inPath, outPath)
	return args.Error(0)
}

func (m *mockProcessor) Concat(ctx context.Context, listPath, outPath string) error {
	args := m.Called(ctx, listPath, outPath)
	return args.Error(0)
}

func (m *mockProcessor) Optimize(ctx context.Context, inPath, outPath string, preset media.VariantPreset) error {
	args := m.Called(ctx, inPath, outPath, preset)
	return args.Error(0)
}

func (m *mockProcessor) Thumbnail(ctx context.Context, inPath, outPath string) error {
	args := m.Called(ctx, inPath, outPath)
	return args.Error(0)
}

// Mock dispatcher

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, task queue.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}
