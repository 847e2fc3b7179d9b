package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts each message as a small JSON document to a URL.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a generic webhook sink.
func NewWebhook(url string) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook: %w", ErrSinkDisabled)
	}
	return &Webhook{url: url, client: newSinkClient(), now: time.Now}, nil
}

type webhookPayload struct {
	Text   string `json:"text"`
	SentAt string `json:"sent_at"`
	Source string `json:"source"`
}

func (w *Webhook) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookPayload{
		Text:   text,
		SentAt: w.now().UTC().Format(time.RFC3339),
		Source: "pingbot",
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
