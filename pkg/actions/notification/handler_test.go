package notification

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/events"
	"github.com/dukex/stride/pkg/mocks"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "u1", mock.AnythingOfType("events.NotificationRequested")).Return(nil)

	h := NewHandler(bus, clockwork.NewFakeClockAt(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)), slog.Default())

	result, err := h.Execute(protocol.WithWorkflowID(context.Background(), "wf-streak"),
		map[string]any{
			"title":   "Nice {{event.workoutType}}, {{user.name}}!",
			"message": "Streak: {{user.streak}} ({{user.unknown}})",
		},
		models.EventContext{EventData: map[string]any{"workoutType": "run"}},
		&models.UserContext{UserID: "u1", Name: "Ana", Properties: map[string]any{"streak": 5}},
	)
	require.NoError(t, err)

	receipt := result.(Receipt)
	assert.Equal(t, "Nice run, Ana!", receipt.Title)
	assert.Equal(t, "Streak: 5 ({{user.unknown}})", receipt.Message)
	assert.Equal(t, defaultChannel, receipt.Channel)

	published := bus.Calls[0].Arguments.Get(2).(events.NotificationRequested)
	assert.Equal(t, receipt.ID, published.ReceiptID)
	assert.Equal(t, events.NotificationRequestedEvent, published.GetType())
	assert.Equal(t, "wf-streak", published.WorkflowID)
}

func TestHandler_TitleOnly(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "u1", mock.AnythingOfType("events.NotificationRequested")).Return(nil)

	h := NewHandler(bus, clockwork.NewRealClock(), slog.Default())

	result, err := h.Execute(context.Background(), map[string]any{"title": "Rest day, {{user.name}}"},
		models.EventContext{}, &models.UserContext{UserID: "u1", Name: "Ana"})
	require.NoError(t, err)

	receipt := result.(Receipt)
	assert.Equal(t, "Rest day, Ana", receipt.Title)
	assert.Empty(t, receipt.Message)
	bus.AssertExpectations(t)
}

func TestHandler_Validation(t *testing.T) {
	t.Parallel()

	h := NewHandler(&mocks.MockEventBus{}, clockwork.NewRealClock(), slog.Default())

	_, err := h.Execute(context.Background(), map[string]any{"message": "hi"}, models.EventContext{}, nil)
	require.ErrorIs(t, err, ErrMissingUser)

	_, err = h.Execute(context.Background(), map[string]any{"channel": "in_app"}, models.EventContext{}, &models.UserContext{UserID: "u1"})
	require.ErrorIs(t, err, actions.ErrMissingConfig)
}
