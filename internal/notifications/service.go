package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"labeldesk/internal/config"
)

const userAgent = "Labeldesk-Go/0.1.0"

// Event names a notification type.
type Event string

const (
	// EventBacklogDrained fires when every known item has a complete result.
	EventBacklogDrained Event = "backlog_drained"
	// EventError reports an operator-facing failure.
	EventError Event = "error"
	// EventTest is sent by `labeldesk test-notify`.
	EventTest Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events to an external channel.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventBacklogDrained: cfg.Notifications.BacklogDrained,
			EventError:          cfg.Notifications.Errors,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventBacklogDrained:
		completed := intValue(payload, "completed")
		return message{
			title: "Labeldesk - Backlog Drained",
			body:  fmt.Sprintf("✅ All %d images labeled", completed),
			tags:  []string{"labeldesk", "backlog", "drained"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := stringValue(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := stringValue(payload, "error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Labeldesk - Error",
			body:     builder.String(),
			tags:     []string{"labeldesk", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Labeldesk - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"labeldesk", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func stringValue(payload Payload, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intValue(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
