package custom

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	t.Parallel()

	h := NewHandler(slog.Default())
	h.Register("award_badge", func(_ context.Context, params map[string]any, _ models.EventContext, user *models.UserContext) (any, error) {
		return map[string]any{"badge": params["badge"], "user": user.UserID}, nil
	})

	result, err := h.Execute(context.Background(), map[string]any{
		"handler":    "award_badge",
		"parameters": map[string]any{"badge": "{{event.badge}}"},
	}, models.EventContext{EventData: map[string]any{"badge": "early_bird"}}, &models.UserContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"badge": "early_bird", "user": "u1"}, result)
	assert.Equal(t, []string{"award_badge"}, h.Names())
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	h := NewHandler(slog.Default())

	_, err := h.Execute(context.Background(), map[string]any{}, models.EventContext{}, nil)
	require.ErrorIs(t, err, actions.ErrMissingConfig)

	_, err = h.Execute(context.Background(), map[string]any{"handler": "rm_rf"}, models.EventContext{}, nil)
	require.ErrorIs(t, err, ErrUnknownFunction)
}
