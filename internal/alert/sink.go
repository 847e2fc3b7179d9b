package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazz-dev/pingbot/internal/config"
)

// Sink delivers one text message to a single configured destination.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Deliver(ctx context.Context, text string) error { return f(ctx, text) }

// ErrSinkDisabled is returned when a sink is selected but not configured.
var ErrSinkDisabled = errors.New("sink not configured")

const sinkTimeout = 10 * time.Second

// NewSink builds the sink selected by cfg.Sink. Secrets are resolved once
// here through lookup (usually os.LookupEnv); stdout is where the stdout
// sink writes.
func NewSink(cfg config.NotifyConfig, lookup func(string) (string, bool), stdout io.Writer) (Sink, error) {
	switch cfg.Sink {
	case "telegram":
		tc, err := config.ResolveTelegram(cfg.Telegram, lookup)
		if err != nil {
			return nil, err
		}
		return NewTelegram(tc.APIURL, tc.Token, tc.ChatID)
	case "webhook":
		return NewWebhook(cfg.Webhook.URL)
	case "slack":
		return NewSlack(cfg.Slack.WebhookURL)
	case "stdout":
		return NewWriterSink(stdout), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

func newSinkClient() *http.Client {
	return &http.Client{Timeout: sinkTimeout}
}
