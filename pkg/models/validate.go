package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidTimezone   = errors.New("invalid timezone")
	ErrMissingEventType  = errors.New("event trigger requires eventType")
	ErrMissingWebhookID  = errors.New("webhook trigger requires webhookId")
	ErrDuplicateActionID = errors.New("duplicate action id")
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCron, expr, err)
	}

	return schedule, nil
}

// Location resolves the trigger timezone.
func (t WorkflowTrigger) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTimezone, t.Timezone(), err)
	}

	return loc, nil
}

// Validate checks struct tags and the trigger-specific configuration.
func Validate(v *validator.Validate, workflow *Workflow) error {
	if err := v.Struct(workflow); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(workflow.Actions))

	for _, action := range workflow.Actions {
		if _, dup := seen[action.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateActionID, action.ID)
		}

		seen[action.ID] = struct{}{}
	}

	switch workflow.Trigger.Type {
	case TriggerTypeSchedule:
		if _, err := ParseCron(workflow.Trigger.CronExpression()); err != nil {
			return err
		}

		if _, err := workflow.Trigger.Location(); err != nil {
			return err
		}
	case TriggerTypeEvent:
		if workflow.Trigger.EventType() == "" {
			return ErrMissingEventType
		}
	case TriggerTypeWebhook:
		if workflow.Trigger.WebhookID() == "" {
			return ErrMissingWebhookID
		}
	case TriggerTypeManual:
	}

	return nil
}
