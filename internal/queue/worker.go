package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/demoreel/demoreel-server/internal/redis"
)

// popTimeout bounds each BRPOP so workers notice shutdown promptly.
const popTimeout = 2 * time.Second

// Pool runs task handlers against the Redis task lists.
type Pool struct {
	client   *redis.Client
	handlers map[Kind]Handler
	workers  int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(client *redis.Client, workers int) *Pool {
	return &Pool{
		client:   client,
		handlers: make(map[Kind]Handler),
		workers:  workers,
	}
}

// Register binds a handler to a task kind. All registrations must happen
// before Start.
func (p *Pool) Register(kind Kind, handler Handler) {
	p.handlers[kind] = handler
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	keys := make([]string, 0, len(p.handlers))
	for kind := range p.handlers {
		keys = append(keys, redis.TaskList(string(kind)))
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, keys)
	}
	log.Info().Int("workers", p.workers).Int("kinds", len(keys)).Msg("worker pool started")
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int, keys []string) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		result, err := p.client.BRPop(ctx, popTimeout, keys...).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Error().Err(err).Int("worker", id).Msg("task pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPop returns [list, payload].
		if len(result) != 2 {
			continue
		}
		p.handle(ctx, id, []byte(result[1]))
	}
}

func (p *Pool) handle(ctx context.Context, id int, payload []byte) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		log.Error().Err(err).Int("worker", id).Msg("discarding malformed task")
		return
	}
	handler, ok := p.handlers[task.Kind]
	if !ok {
		log.Warn().Str("kind", string(task.Kind)).Msg("no handler for task kind")
		return
	}

	logger := log.With().
		Int("worker", id).
		Str("kind", string(task.Kind)).
		Str("session_id", task.SessionID).
		Logger()
	logger.Info().Msg("task started")

	start := time.Now()
	if err := handler(ctx, task); err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("task failed")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("task done")
}
