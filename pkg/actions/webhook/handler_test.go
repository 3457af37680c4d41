package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func TestHandler_Execute(t *testing.T) {
	t.Parallel()

	var (
		gotHeaders http.Header
		gotBody    map[string]any
		gotPath    string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	h := NewHandlerWithClient(server.Client(), clockwork.NewFakeClockAt(now), slog.Default())

	result, err := h.Execute(context.Background(), map[string]any{
		"url":     server.URL + "/hooks/{{user.userId}}",
		"headers": map[string]any{"X-Api-Key": "secret", "X-User": "{{user.name}}"},
		"payload": map[string]any{"kind": "{{event.kind}}"},
	}, models.EventContext{EventType: "goal_reached", EventData: map[string]any{"kind": "streak"}},
		&models.UserContext{UserID: "u1", Name: "Ana"})
	require.NoError(t, err)

	resp := result.(Response)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, resp.Body)
	assert.NotEmpty(t, resp.ReceiptID)

	assert.Equal(t, "/hooks/u1", gotPath)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "secret", gotHeaders.Get("X-Api-Key"))
	assert.Equal(t, "Ana", gotHeaders.Get("X-User"))

	assert.Equal(t, "streak", gotBody["kind"])
	assert.Equal(t, "2024-03-04T09:00:00Z", gotBody["timestamp"])
	assert.Contains(t, gotBody, "event")
	assert.Contains(t, gotBody, "user")
}

func TestHandler_ContentTypeOverride(t *testing.T) {
	t.Parallel()

	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewHandlerWithClient(server.Client(), clockwork.NewFakeClockAt(now), slog.Default())

	_, err := h.Execute(context.Background(), map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"Content-Type": "application/vnd.stride+json"},
	}, models.EventContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.stride+json", contentType)
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := NewHandlerWithClient(server.Client(), clockwork.NewFakeClockAt(now), slog.Default())

	_, err := h.Execute(context.Background(), map[string]any{}, models.EventContext{}, nil)
	require.ErrorIs(t, err, actions.ErrMissingConfig)

	result, err := h.Execute(context.Background(), map[string]any{"url": server.URL}, models.EventContext{}, nil)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, http.StatusBadGateway, result.(Response).StatusCode)
}
