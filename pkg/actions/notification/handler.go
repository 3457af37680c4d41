// Package notification queues in-app and push notifications on the event bus outbox.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/eventbus"
	"github.com/dukex/stride/pkg/events"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/template"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const defaultChannel = "push"

var ErrMissingUser = errors.New("notification requires a user")

type Receipt struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Channel string    `json:"channel"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

type Handler struct {
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewHandler(publisher eventbus.EventPublisher, clock clockwork.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("module", "notification_action"),
	}
}

func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	if user == nil {
		return nil, ErrMissingUser
	}

	title, _ := actions.StringConfig(config, "title")
	message, _ := actions.StringConfig(config, "message")

	if title == "" && message == "" {
		return nil, actions.MissingConfig("title or message")
	}

	channel, ok := actions.StringConfig(config, "channel")
	if !ok {
		channel = defaultChannel
	}

	receipt := Receipt{
		ID:      uuid.NewString(),
		UserID:  user.UserID,
		Channel: channel,
		Title:   template.Interpolate(title, event, user),
		Message: template.Interpolate(message, event, user),
		SentAt:  h.clock.Now().UTC(),
	}

	err := h.publisher.Publish(ctx, user.UserID, events.NotificationRequested{
		BaseEvent: events.BaseEvent{
			ID:         receipt.ID,
			Type:       events.NotificationRequestedEvent,
			Timestamp:  receipt.SentAt,
			WorkflowID: protocol.WorkflowID(ctx),
		},
		ReceiptID: receipt.ID,
		UserID:    receipt.UserID,
		Channel:   receipt.Channel,
		Title:     receipt.Title,
		Message:   receipt.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("queue notification: %w", err)
	}

	h.logger.InfoContext(ctx, "notification queued", "receipt_id", receipt.ID, "channel", channel, "user_id", user.UserID)

	return receipt, nil
}
