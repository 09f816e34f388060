package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/demoreel/demoreel-server/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// AdvanceStatus moves the session to the target status only when the
	// current status is one of from. Returns false when no row changed,
	// which callers treat as an already-applied transition.
	AdvanceStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (bool, error)
	PutClip(ctx context.Context, id string, slot string, clip model.ClipRecord) error
	MarkQueued(ctx context.Context, id string) (bool, error)
	SetSlides(ctx context.Context, id string, slides model.SlideList) error
	SetStitchProgress(ctx context.Context, id string, current, total int, step string) error
	SetStitched(ctx context.Context, id string, key, url string, duration float64, resolution string) error
	SetOptimizeProgress(ctx context.Context, id string, current, total int, step string) error
	SetComplete(ctx context.Context, id string, result model.FinalResult) error
	MarkFailed(ctx context.Context, id string, status model.SessionStatus, message string) error
	ListCleanupCandidates(ctx context.Context, completedBefore, failedBefore time.Time) ([]model.Session, error)
	Delete(ctx context.Context, id string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, project_name, owner, source_url, suggestions, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.ID, params.ProjectName, params.Owner, params.SourceURL, params.Suggestions, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) AdvanceStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
	`, id, pq.Array(states), to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PutClip writes one slot of the upload map without touching any other
// slot, so concurrent per-clip updates cannot clobber each other.
func (r *sessionRepo) PutClip(ctx context.Context, id string, slot string, clip model.ClipRecord) error {
	value, err := json.Marshal(clip)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE sessions SET
			uploaded_videos = jsonb_set(uploaded_videos, ARRAY[$2], $3::jsonb, true),
			updated_at = now()
		WHERE id = $1
	`, id, slot, value)
	return err
}

func (r *sessionRepo) MarkQueued(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'queued',
			queued_at = $2,
			updated_at = $2
		WHERE id = $1 AND status IN ('ready_for_processing', 'uploading')
	`, id, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sessionRepo) SetSlides(ctx context.Context, id string, slides model.SlideList) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'slides_ready',
			slides = $2,
			slides_count = $3,
			updated_at = now()
		WHERE id = $1
	`, id, slides, len(slides))
	return err
}

func (r *sessionRepo) SetStitchProgress(ctx context.Context, id string, current, total int, step string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'stitching',
			current_item = $2,
			total_items = $3,
			processing_step = $4,
			updated_at = now()
		WHERE id = $1
	`, id, current, total, step)
	return err
}

func (r *sessionRepo) SetStitched(ctx context.Context, id string, key, url string, duration float64, resolution string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'stitched',
			stitched_video_key = $2,
			stitched_video_url = $3,
			stitched_video_duration = $4,
			stitched_video_resolution = $5,
			processing_step = '',
			updated_at = now()
		WHERE id = $1
	`, id, key, url, duration, resolution)
	return err
}

func (r *sessionRepo) SetOptimizeProgress(ctx context.Context, id string, current, total int, step string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'optimizing',
			current_item = $2,
			total_items = $3,
			processing_step = $4,
			updated_at = now()
		WHERE id = $1
	`, id, current, total, step)
	return err
}

func (r *sessionRepo) SetComplete(ctx context.Context, id string, result model.FinalResult) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'complete',
			final_video_key = $2,
			final_video_duration = $3,
			final_video_size = $4,
			demo_url = $5,
			demo_url_720p = $6,
			demo_url_1080p = $7,
			thumbnail_url = $8,
			completed_at = $9,
			updated_at = $9
		WHERE id = $1
	`, id, result.Key, result.Duration, result.Size, result.DemoURL,
		result.DemoURL720p, result.DemoURL1080p, result.ThumbnailURL, time.Now())
	return err
}

func (r *sessionRepo) MarkFailed(ctx context.Context, id string, status model.SessionStatus, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			error_message = $3,
			failed_at = $4,
			updated_at = $4
		WHERE id = $1
	`, id, status, message, time.Now())
	return err
}

func (r *sessionRepo) ListCleanupCandidates(ctx context.Context, completedBefore, failedBefore time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE (status = 'complete' AND created_at < $1)
		   OR (status IN ('validation_failed', 'conversion_failed', 'stitching_failed', 'optimization_failed') AND created_at < $2)
		   OR expires_at < now()
		ORDER BY created_at
	`, completedBefore, failedBefore)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}
