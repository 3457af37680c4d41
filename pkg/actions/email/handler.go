// Package email queues templated emails on the event bus outbox.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stride/pkg/eventbus"
	"github.com/dukex/stride/pkg/events"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/template"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const defaultTemplate = "default"

var ErrMissingRecipient = errors.New("user email is required")

// Receipt is returned to the engine once the email is queued.
type Receipt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Template  string    `json:"template"`
	Recipient string    `json:"recipient"`
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
		logger:    logger.With("module", "email_action"),
	}
}

// Execute reads "template", "subject", "body" and "variables" from config.
func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	if user == nil || user.Email == "" {
		return nil, ErrMissingRecipient
	}

	tmpl, _ := config["template"].(string)
	if tmpl == "" {
		tmpl = defaultTemplate
	}

	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	variables := map[string]any{
		"userName":  user.Name,
		"userEmail": user.Email,
		"eventType": event.EventType,
	}

	if extra, ok := config["variables"].(map[string]any); ok {
		for k, v := range template.InterpolateValue(extra, event, user).(map[string]any) {
			variables[k] = v
		}
	}

	receipt := Receipt{
		ID:        uuid.NewString(),
		Timestamp: h.clock.Now().UTC(),
		Template:  tmpl,
		Recipient: user.Email,
	}

	err := h.publisher.Publish(ctx, user.UserID, events.EmailRequested{
		BaseEvent: events.BaseEvent{
			ID:         receipt.ID,
			Type:       events.EmailRequestedEvent,
			Timestamp:  receipt.Timestamp,
			WorkflowID: protocol.WorkflowID(ctx),
		},
		ReceiptID: receipt.ID,
		Recipient: user.Email,
		Template:  tmpl,
		Subject:   template.Interpolate(subject, event, user),
		Body:      template.Interpolate(body, event, user),
		Variables: variables,
	})
	if err != nil {
		return nil, fmt.Errorf("queue email: %w", err)
	}

	h.logger.InfoContext(ctx, "email queued", "receipt_id", receipt.ID, "template", tmpl, "user_id", user.UserID)

	return receipt, nil
}
