package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Cap on API request bodies. Clip uploads bypass the API via presigned
// URLs, so only metadata payloads pass through.
const MaxRequestBodyBytes int64 = 1 << 20

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Accepted clip resolution bounds, inclusive
const (
	MinClipWidth  = 320
	MinClipHeight = 240
	MaxClipWidth  = 7680
	MaxClipHeight = 4320
)

// Wall-clock budgets for media tool invocations. A stage that blows its
// budget reports an explicit failure status instead of hanging the session.
const (
	ProbeTimeout     = 30 * time.Second
	ConvertTimeout   = 280 * time.Second
	SlideClipTimeout = 60 * time.Second
	ConcatTimeout    = 10 * time.Minute
	OptimizeTimeout  = 15 * time.Minute
	ThumbnailTimeout = 60 * time.Second
)
