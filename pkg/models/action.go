package models

import (
	"math"
	"time"
)

// ActionType names a registered action handler.
type ActionType string

const (
	ActionTypeEmail        ActionType = "email"
	ActionTypeNotification ActionType = "notification"
	ActionTypeDatabase     ActionType = "database"
	ActionTypeAIAnalysis   ActionType = "ai_analysis"
	ActionTypeWebhook      ActionType = "webhook"
	ActionTypeCustom       ActionType = "custom"
)

type WorkflowAction struct {
	ID          string         `json:"id"                     validate:"required"`
	Type        ActionType     `json:"type"                   validate:"required"`
	Config      map[string]any `json:"config"`
	RetryConfig *RetryConfig   `json:"retry_config,omitempty" validate:"omitempty"`
}

// RetryConfig controls re-attempts of a failing action. A nil RetryConfig
// means a failure aborts the whole execution.
type RetryConfig struct {
	MaxAttempts       int     `json:"max_attempts"       validate:"min=1"`
	BackoffMs         int     `json:"backoff_ms"         validate:"min=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"min=0"`
}

// Delay returns the wait applied before the given retry (1-based):
// backoffMs * multiplier^(retry-1).
func (r RetryConfig) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}

	multiplier := r.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	ms := float64(r.BackoffMs) * math.Pow(multiplier, float64(retry-1))

	return time.Duration(ms * float64(time.Millisecond))
}
