package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// Event is the JSON payload delivered for every observed transition.
type Event struct {
	RecordID   string          `json:"record_id"`
	Ref        string          `json:"ref"`
	Repo       string          `json:"repo,omitempty"`
	FromState  lifecycle.State `json:"from_state"`
	ToState    lifecycle.State `json:"to_state"`
	Trigger    string          `json:"trigger"`
	AutoMerge  bool            `json:"auto_merge"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Webhook delivers transition events to an HTTP endpoint as signed JSON
// POSTs. The zero value is not usable; construct with NewWebhook.
type Webhook struct {
	url        string
	secret     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithSecret enables HMAC-SHA256 signing. The signature covers
// "<timestamp>.<payload>" and is sent in X-Loopforge-Signature alongside
// X-Loopforge-Timestamp, letting receivers reject replayed deliveries.
func WithSecret(secret string) WebhookOption {
	return func(w *Webhook) { w.secret = secret }
}

// WithHTTPClient overrides the default client, e.g. for custom transports
// or tests. Nil clients are ignored.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		if client != nil {
			w.client = client
		}
	}
}

// WithRetries sets how many delivery retries follow the first attempt and
// the base delay between them; the delay grows linearly per attempt.
func WithRetries(maxRetries int, delay time.Duration) WebhookOption {
	return func(w *Webhook) {
		if maxRetries >= 0 {
			w.maxRetries = maxRetries
		}
		if delay > 0 {
			w.retryDelay = delay
		}
	}
}

// NewWebhook creates a webhook notifier targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 2,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Hook adapts the notifier to the loop.Hook signature.
func (w *Webhook) Hook() loop.Hook {
	return func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
		return w.Send(ctx, Event{
			RecordID:   record.ID,
			Ref:        record.Ref,
			Repo:       record.Repo,
			FromState:  from,
			ToState:    to,
			Trigger:    trigger,
			AutoMerge:  record.AutoMerge,
			OccurredAt: record.UpdatedAt,
		})
	}
}

// Send delivers one event, retrying transport errors and 5xx responses.
// 4xx responses are not retried: the receiver rejected the delivery and
// will keep doing so.
func (w *Webhook) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarshalPayload, err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.retryDelay):
			}
		}

		retryable, err := w.deliver(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

func (w *Webhook) deliver(ctx context.Context, payload []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "loopforge-webhook/1.0")

	if w.secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Loopforge-Timestamp", ts)
		req.Header.Set("X-Loopforge-Signature", Sign(w.secret, ts, payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<payload>" under the
// shared secret. Receivers recompute it to verify the delivery.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload and
// timestamp using a constant-time comparison.
func VerifySignature(secret, timestamp, signature string, payload []byte) bool {
	expected := Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
