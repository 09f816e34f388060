package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/demoreel/demoreel-server/internal/redis"
)

type redisDispatcher struct {
	client *redis.Client
}

func NewRedisDispatcher(client *redis.Client) Dispatcher {
	return &redisDispatcher{client: client}
}

func (d *redisDispatcher) Dispatch(ctx context.Context, task Task) error {
	if task.Kind == "" {
		return fmt.Errorf("dispatch: task kind is empty")
	}
	if task.Timestamp == "" {
		task.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := d.client.LPush(ctx, redis.TaskList(string(task.Kind)), payload).Err(); err != nil {
		return fmt.Errorf("push task %s: %w", task.Kind, err)
	}
	return nil
}
