package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// Slack posts a transition summary to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// SlackOption configures a Slack notifier.
type SlackOption func(*Slack)

// WithSlackHTTPClient overrides the default client. Nil clients are ignored.
func WithSlackHTTPClient(client *http.Client) SlackOption {
	return func(s *Slack) {
		if client != nil {
			s.client = client
		}
	}
}

// NewSlack creates a notifier for a Slack incoming-webhook URL.
func NewSlack(webhookURL string, opts ...SlackOption) *Slack {
	s := &Slack{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hook adapts the notifier to the loop.Hook signature.
func (s *Slack) Hook() loop.Hook {
	return func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
		text := fmt.Sprintf("`%s` %s → %s (%s)", record.Ref, from, to, trigger)
		if record.Repo != "" {
			text = fmt.Sprintf("[%s] %s", record.Repo, text)
		}
		return s.Post(ctx, text)
	}
}

// Post sends a plain-text message to the incoming webhook.
func (s *Slack) Post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarshalPayload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: slack returned %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
