package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
	"github.com/dmitrymomot/loopforge/pkg/notify"
)

func sampleEvent() notify.Event {
	return notify.Event{
		RecordID:   "rec-1",
		Ref:        "https://github.com/org/x/issues/5",
		Repo:       "org/x",
		FromState:  lifecycle.StateCIPending,
		ToState:    lifecycle.StateCIPassed,
		Trigger:    "ci.passed",
		AutoMerge:  true,
		OccurredAt: time.Now().UTC(),
	}
}

func TestWebhook_Send(t *testing.T) {
	t.Parallel()

	t.Run("delivers JSON payload", func(t *testing.T) {
		t.Parallel()

		var received notify.Event
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "loopforge-webhook/1.0", r.Header.Get("User-Agent"))

			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		event := sampleEvent()
		wh := notify.NewWebhook(server.URL)
		require.NoError(t, wh.Send(context.Background(), event))

		assert.Equal(t, event.RecordID, received.RecordID)
		assert.Equal(t, event.FromState, received.FromState)
		assert.Equal(t, event.ToState, received.ToState)
		assert.Equal(t, event.Trigger, received.Trigger)
	})

	t.Run("signs payload when secret is set", func(t *testing.T) {
		t.Parallel()
		const secret = "shhh"

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := r.Header.Get("X-Loopforge-Timestamp")
			sig := r.Header.Get("X-Loopforge-Signature")
			require.NotEmpty(t, ts)
			require.NotEmpty(t, sig)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.True(t, notify.VerifySignature(secret, ts, sig, body))
			assert.False(t, notify.VerifySignature("wrong", ts, sig, body))

			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		wh := notify.NewWebhook(server.URL, notify.WithSecret(secret))
		require.NoError(t, wh.Send(context.Background(), sampleEvent()))
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		wh := notify.NewWebhook(server.URL, notify.WithRetries(3, time.Millisecond))
		require.NoError(t, wh.Send(context.Background(), sampleEvent()))
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		wh := notify.NewWebhook(server.URL, notify.WithRetries(3, time.Millisecond))
		err := wh.Send(context.Background(), sampleEvent())
		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("gives up after retries", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		wh := notify.NewWebhook(server.URL, notify.WithRetries(1, time.Millisecond))
		err := wh.Send(context.Background(), sampleEvent())
		assert.ErrorIs(t, err, notify.ErrDeliveryFailed)
	})

	t.Run("respects context cancellation between retries", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		wh := notify.NewWebhook(server.URL, notify.WithRetries(10, time.Second))
		err := wh.Send(ctx, sampleEvent())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWebhook_Hook(t *testing.T) {
	t.Parallel()

	var received notify.Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	record := &loop.Record{
		ID:        "rec-9",
		Ref:       "https://github.com/org/x/issues/9",
		Repo:      "org/x",
		State:     lifecycle.StateTaskQueued,
		AutoMerge: true,
		UpdatedAt: time.Now().UTC(),
	}

	hook := notify.NewWebhook(server.URL).Hook()
	err := hook(context.Background(), record, lifecycle.StateIssueCreated, lifecycle.StateTaskQueued, "worker.picked_up")
	require.NoError(t, err)

	assert.Equal(t, "rec-9", received.RecordID)
	assert.Equal(t, lifecycle.StateIssueCreated, received.FromState)
	assert.Equal(t, lifecycle.StateTaskQueued, received.ToState)
	assert.Equal(t, "worker.picked_up", received.Trigger)
	assert.True(t, received.AutoMerge)
}

func TestSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"record_id":"rec-1"}`)
	sig := notify.Sign("secret", "1700000000", payload)

	assert.True(t, notify.VerifySignature("secret", "1700000000", sig, payload))
	assert.False(t, notify.VerifySignature("secret", "1700000001", sig, payload))
	assert.False(t, notify.VerifySignature("secret", "1700000000", sig, []byte(`{}`)))
	assert.False(t, notify.VerifySignature("other", "1700000000", sig, payload))
}
