// Package notify delivers human-readable trading notifications to a chat webhook.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier sends a text message. Delivery is best-effort; callers log failures
// and carry on.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Discord posts messages to a Discord webhook.
type Discord struct {
	client  *resty.Client
	webhook string
	loc     *time.Location
	now     func() time.Time
}

// NewDiscord creates a webhook notifier. Messages are prefixed with the time in loc.
func NewDiscord(webhook string, loc *time.Location) *Discord {
	if loc == nil {
		loc = time.Local
	}
	client := resty.New()
	client.SetTimeout(5 * time.Second)

	return &Discord{
		client:  client,
		webhook: webhook,
		loc:     loc,
		now:     time.Now,
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (d *Discord) Notify(ctx context.Context, msg string) error {
	content := fmt.Sprintf("[%s] %s", d.now().In(d.loc).Format("2006-01-02 15:04:05"), msg)

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(discordPayload{Content: content}).
		Post(d.webhook)
	if err != nil {
		return fmt.Errorf("discord notify: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord notify: HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Log writes notifications to the standard logger. Used when no webhook is configured.
type Log struct{}

func (Log) Notify(_ context.Context, msg string) error {
	log.Printf("📣 %s", msg)
	return nil
}

// Multi fans a message out to every notifier and reports the first failure.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
