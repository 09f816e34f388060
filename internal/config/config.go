package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Object storage bucket. Artifacts live under three prefixes per
	// session: videos/{id}/, slides/{id}/ and demos/{id}/.
	MediaBucket string `env:"MEDIA_BUCKET,required"`

	// Clip policy bounds, enforced by the validator.
	MinClipSeconds int   `env:"MIN_CLIP_SECONDS" envDefault:"5"`
	MaxClipSeconds int   `env:"MAX_CLIP_SECONDS" envDefault:"120"`
	MinClipBytes   int64 `env:"MIN_CLIP_BYTES" envDefault:"1000"`
	MaxClipBytes   int64 `env:"MAX_CLIP_BYTES" envDefault:"104857600"`

	// Media tool binaries.
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	// Seconds each slide is held on screen in the stitched video.
	SlideSeconds int `env:"SLIDE_SECONDS" envDefault:"3"`

	// Presigned URL lifetimes.
	UploadURLTTLSeconds   int `env:"UPLOAD_URL_TTL_SECONDS" envDefault:"900"`
	DownloadURLTTLSeconds int `env:"DOWNLOAD_URL_TTL_SECONDS" envDefault:"86400"`

	// Retention windows. Complete sessions are kept DaysToKeep days,
	// failed ones FailedSessionDays; the sweeper deletes past those.
	DaysToKeep        int `env:"DAYS_TO_KEEP" envDefault:"30"`
	FailedSessionDays int `env:"FAILED_SESSION_DAYS" envDefault:"7"`
	SessionTTLDays    int `env:"SESSION_TTL_DAYS" envDefault:"30"`

	CleanupIntervalMinutes int `env:"CLEANUP_INTERVAL_MINUTES" envDefault:"1440"`

	// Pipeline workers consuming the stage queues.
	WorkerCount int `env:"WORKER_COUNT" envDefault:"4"`

	// Optional completion webhook. Empty disables it.
	WebhookURL string `env:"WEBHOOK_URL"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) UploadURLTTL() time.Duration {
	return time.Duration(c.UploadURLTTLSeconds) * time.Second
}

func (c *Config) DownloadURLTTL() time.Duration {
	return time.Duration(c.DownloadURLTTLSeconds) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.DaysToKeep) * 24 * time.Hour
}

func (c *Config) FailedRetentionWindow() time.Duration {
	return time.Duration(c.FailedSessionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.MinClipSeconds <= 0 || c.MaxClipSeconds <= c.MinClipSeconds {
		return fmt.Errorf("clip duration bounds invalid: min=%ds max=%ds", c.MinClipSeconds, c.MaxClipSeconds)
	}
	if c.MaxClipBytes <= c.MinClipBytes {
		return fmt.Errorf("clip size bounds invalid: min=%d max=%d", c.MinClipBytes, c.MaxClipBytes)
	}
	if c.SlideSeconds <= 0 {
		return fmt.Errorf("SLIDE_SECONDS must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
