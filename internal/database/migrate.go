package database

import "context"

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id                        TEXT PRIMARY KEY,
    project_name              TEXT NOT NULL,
    owner                     TEXT NOT NULL DEFAULT '',
    source_url                TEXT NOT NULL DEFAULT '',
    status                    TEXT NOT NULL DEFAULT 'ready',
    suggestions               JSONB NOT NULL DEFAULT '[]',
    uploaded_videos           JSONB NOT NULL DEFAULT '{}',
    slides                    JSONB NOT NULL DEFAULT '[]',
    slides_count              INTEGER NOT NULL DEFAULT 0,
    current_item              INTEGER NOT NULL DEFAULT 0,
    total_items               INTEGER NOT NULL DEFAULT 0,
    processing_step           TEXT NOT NULL DEFAULT '',
    stitched_video_key        TEXT NOT NULL DEFAULT '',
    stitched_video_url        TEXT NOT NULL DEFAULT '',
    stitched_video_duration   DOUBLE PRECISION NOT NULL DEFAULT 0,
    stitched_video_resolution TEXT NOT NULL DEFAULT '',
    final_video_key           TEXT NOT NULL DEFAULT '',
    final_video_duration      DOUBLE PRECISION NOT NULL DEFAULT 0,
    final_video_size          BIGINT NOT NULL DEFAULT 0,
    demo_url                  TEXT NOT NULL DEFAULT '',
    demo_url_720p             TEXT NOT NULL DEFAULT '',
    demo_url_1080p            TEXT NOT NULL DEFAULT '',
    thumbnail_url             TEXT NOT NULL DEFAULT '',
    error_message             TEXT NOT NULL DEFAULT '',
    failed_at                 TIMESTAMPTZ,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at                TIMESTAMPTZ NOT NULL,
    queued_at                 TIMESTAMPTZ,
    completed_at              TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions (updated_at);
`

// Migrate creates the sessions table and its indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, sessionsSchema)
	return err
}
