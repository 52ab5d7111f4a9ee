package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify(t *testing.T) {
	t.Parallel()

	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fixed := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	n := NewNotifier(srv.URL, WithClock(func() time.Time { return fixed }))

	err := n.Notify(context.Background(), LevelSuccess, "sync run complete")

	require.NoError(t, err)
	assert.Equal(t, "✅ *SUCCESS* `2024-06-01 08:30:00`\nsync run complete", payload.Text)
}

func TestNotify_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Notify(context.Background(), LevelError, "boom")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestNotify_Unconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier("")
	assert.NoError(t, n.Notify(context.Background(), LevelInfo, "dropped"))
}

func TestLevelEmoji(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ℹ️", LevelInfo.emoji())
	assert.Equal(t, "✅", LevelSuccess.emoji())
	assert.Equal(t, "⚠️", LevelWarning.emoji())
	assert.Equal(t, "❌", LevelError.emoji())
	assert.Equal(t, "📌", Level("DEBUG").emoji())
}
