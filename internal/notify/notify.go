package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is a pipeline milestone pushed to interested listeners.
type Event struct {
	SessionID   string `json:"session_id"`
	ProjectName string `json:"project_name,omitempty"`
	Event       string `json:"event"`
	Detail      string `json:"detail,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Notifier fans an event out. Delivery is best effort; the pipeline
// never fails because a listener is down.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log only.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	log.Info().
		Str("session_id", event.SessionID).
		Str("event", event.Event).
		Str("detail", event.Detail).
		Msg("pipeline event")
	return nil
}

// WebhookNotifier POSTs events as JSON to a fixed URL, and logs them.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	log.Info().
		Str("session_id", event.SessionID).
		Str("event", event.Event).
		Msg("pipeline event")

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
