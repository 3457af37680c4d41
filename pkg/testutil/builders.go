// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates an enabled manual workflow with one notification
// action; overrides are applied in order.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:      uuid.New().String(),
		Name:    "Test Workflow",
		Trigger: models.WorkflowTrigger{Type: models.TriggerTypeManual},
		Actions: []models.WorkflowAction{
			{ID: "notify", Type: models.ActionTypeNotification, Config: map[string]any{"title": "Hi", "message": "Hello"}},
		},
		Enabled: true,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
		w.Name = "Workflow " + id
	}
}

func WithEventTrigger(eventType string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = models.WorkflowTrigger{
			Type:   models.TriggerTypeEvent,
			Config: map[string]any{"eventType": eventType},
		}
	}
}

func WithCronTrigger(expr string, timezone string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		config := map[string]any{"cron": expr}
		if timezone != "" {
			config["timezone"] = timezone
		}

		w.Trigger = models.WorkflowTrigger{Type: models.TriggerTypeSchedule, Config: config}
	}
}

// WithWebhookTrigger binds the workflow to webhook id; an empty secret leaves it unsigned.
func WithWebhookTrigger(webhookID, secret string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		config := map[string]any{"webhookId": webhookID}
		if secret != "" {
			config["secret"] = secret
		}

		w.Trigger = models.WorkflowTrigger{Type: models.TriggerTypeWebhook, Config: config}
	}
}

func WithConditions(conditions ...models.WorkflowCondition) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Conditions = conditions
	}
}

func WithActions(actions ...models.WorkflowAction) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}

func Disabled() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Enabled = false
	}
}

// CreateTestUser creates a free tier user who joined 30 days before now.
func CreateTestUser(now time.Time, overrides ...func(*models.UserContext)) *models.UserContext {
	user := &models.UserContext{
		UserID:           uuid.New().String(),
		Email:            "test@example.com",
		Name:             "Test User",
		SubscriptionTier: models.SubscriptionFree,
		JoinedAt:         now.AddDate(0, 0, -30),
		LastActiveAt:     now,
		Properties:       map[string]any{},
	}

	for _, override := range overrides {
		override(user)
	}

	return user
}

func WithTier(tier models.SubscriptionTier) func(*models.UserContext) {
	return func(u *models.UserContext) {
		u.SubscriptionTier = tier
	}
}

func WithProperty(key string, value any) func(*models.UserContext) {
	return func(u *models.UserContext) {
		u.Properties[key] = value
	}
}
