package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// sweeper is the cleanup surface the job drives.
type sweeper interface {
	RunScheduled(ctx context.Context) (int, error)
}

// sweepTimeout bounds one full sweep, object deletions included.
const sweepTimeout = 10 * time.Minute

type CleanupJob struct {
	cleanup  sweeper
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(cleanup sweeper, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		cleanup:  cleanup,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *CleanupJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := j.cleanup.RunScheduled(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled cleanup failed")
	}
}
