package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Slack posts to a Slack incoming webhook.
type Slack struct {
	webhook string
	client  *http.Client
}

// NewSlack returns a Slack sink for the given incoming-webhook URL.
func NewSlack(webhook string) (*Slack, error) {
	if webhook == "" {
		return nil, fmt.Errorf("slack: %w", ErrSinkDisabled)
	}
	return &Slack{webhook: webhook, client: newSinkClient()}, nil
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshaling slack request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
