// Package models defines the core domain models for trigger/condition/action workflow automation
package models

import (
	"maps"
	"time"
)

// Workflow binds one trigger to a condition set and an ordered list of actions.
type Workflow struct {
	ID          string              `json:"id"                    validate:"required"`
	Name        string              `json:"name"                  validate:"required,min=3"`
	Description string              `json:"description"`
	Trigger     WorkflowTrigger     `json:"trigger"`
	Conditions  []WorkflowCondition `json:"conditions,omitempty"  validate:"dive"`
	Actions     []WorkflowAction    `json:"actions"               validate:"required,min=1,dive"`
	Enabled     bool                `json:"enabled"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ActionByID returns the action declared with the given id.
func (w *Workflow) ActionByID(id string) (WorkflowAction, bool) {
	for _, action := range w.Actions {
		if action.ID == id {
			return action, true
		}
	}

	return WorkflowAction{}, false
}

// TriggerType identifies how a workflow is started.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeManual   TriggerType = "manual"
)

// WorkflowTrigger is the declarative start condition of a workflow.
// Config keys by type:
//   - event:    "eventType"
//   - schedule: "cron", optional "timezone" (IANA, default UTC), optional "event", optional "audience"
//   - webhook:  "webhookId", optional "eventType", "secret", "schema"
type WorkflowTrigger struct {
	Type   TriggerType    `json:"type"   validate:"required,oneof=event schedule webhook manual"`
	Config map[string]any `json:"config"`
}

// Clone returns a copy with its own config map.
func (t WorkflowTrigger) Clone() WorkflowTrigger {
	t.Config = maps.Clone(t.Config)

	return t
}

// Redacted returns a copy without the webhook secret, safe to store on executions.
func (t WorkflowTrigger) Redacted() WorkflowTrigger {
	c := t.Clone()
	delete(c.Config, "secret")

	return c
}

func (t WorkflowTrigger) stringConfig(key string) string {
	if t.Config == nil {
		return ""
	}

	s, _ := t.Config[key].(string)

	return s
}

// EventType returns the event type an event trigger listens to.
func (t WorkflowTrigger) EventType() string {
	return t.stringConfig("eventType")
}

// CronExpression returns the 5-field cron expression of a schedule trigger.
func (t WorkflowTrigger) CronExpression() string {
	return t.stringConfig("cron")
}

// Timezone returns the IANA timezone of a schedule trigger, defaulting to UTC.
func (t WorkflowTrigger) Timezone() string {
	if tz := t.stringConfig("timezone"); tz != "" {
		return tz
	}

	return "UTC"
}

// ScheduledEvent returns the event type stamped on cron firings.
func (t WorkflowTrigger) ScheduledEvent() string {
	return t.stringConfig("event")
}

// WebhookID returns the webhook id a webhook trigger is bound to.
func (t WorkflowTrigger) WebhookID() string {
	return t.stringConfig("webhookId")
}

// WebhookSecret returns the shared secret webhook signatures are checked against.
func (t WorkflowTrigger) WebhookSecret() string {
	return t.stringConfig("secret")
}

// WebhookSchema returns the optional JSON schema webhook payloads must match.
func (t WorkflowTrigger) WebhookSchema() map[string]any {
	if t.Config == nil {
		return nil
	}

	schema, _ := t.Config["schema"].(map[string]any)

	return schema
}

// Audience returns the subscription tiers a scheduled workflow is limited to.
// Empty means every user.
func (t WorkflowTrigger) Audience() []SubscriptionTier {
	if t.Config == nil {
		return nil
	}

	var tiers []SubscriptionTier

	switch raw := t.Config["audience"].(type) {
	case []string:
		for _, s := range raw {
			tiers = append(tiers, SubscriptionTier(s))
		}
	case []any:
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tiers = append(tiers, SubscriptionTier(s))
			}
		}
	}

	return tiers
}
