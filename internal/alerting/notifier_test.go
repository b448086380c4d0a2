package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{Bucket: time.Now(), Token: "solace", Stage: "twap", Err: errors.New("zero elapsed")}

	require.NoError(t, notifier.Notify(context.Background(), note))
	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "solace")
	assert.Contains(t, received["text"], "zero elapsed")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{Bucket: time.Now(), Token: "solace"}

	assert.Error(t, notifier.Notify(context.Background(), note), "ok=false should return an error")
}

type countingNotifier struct {
	calls int
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return nil
}

func TestThrottledCooldown(t *testing.T) {
	inner := &countingNotifier{}
	throttled := NewThrottled(inner, 30*time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	throttled.now = func() time.Time { return now }

	ctx := context.Background()
	_ = throttled.Notify(ctx, Notification{Token: "solace", Stage: "fetch"})
	_ = throttled.Notify(ctx, Notification{Token: "solace", Stage: "fetch"})
	_ = throttled.Notify(ctx, Notification{Token: "ply", Stage: "fetch"})
	assert.Equal(t, 2, inner.calls)

	now = now.Add(31 * time.Minute)
	_ = throttled.Notify(ctx, Notification{Token: "solace", Stage: "fetch"})
	assert.Equal(t, 3, inner.calls, "alert after cooldown should be forwarded")
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
