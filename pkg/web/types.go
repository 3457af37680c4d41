// Package web provides the HTTP surface of the engine: inbound webhooks, manual
// runs, event injection and execution lookups.
package web

import (
	"time"

	"github.com/dukex/stride/pkg/models"
)

// UserRequest identifies the user a run is performed for.
type UserRequest struct {
	UserID           string         `json:"user_id"           validate:"required"`
	Email            string         `json:"email"             validate:"omitempty,email"`
	Name             string         `json:"name"`
	SubscriptionTier string         `json:"subscription_tier" validate:"omitempty,oneof=free basic premium"`
	JoinedAt         time.Time      `json:"joined_at"`
	LastActiveAt     time.Time      `json:"last_active_at"`
	Properties       map[string]any `json:"properties,omitempty"`
}

func (u *UserRequest) UserContext() *models.UserContext {
	if u == nil {
		return nil
	}

	tier := models.SubscriptionTier(u.SubscriptionTier)
	if tier == "" {
		tier = models.SubscriptionFree
	}

	return &models.UserContext{
		UserID:           u.UserID,
		Email:            u.Email,
		Name:             u.Name,
		SubscriptionTier: tier,
		JoinedAt:         u.JoinedAt,
		LastActiveAt:     u.LastActiveAt,
		Properties:       u.Properties,
	}
}

// RunRequest is the body of manual, webhook and event runs. Both fields are optional.
type RunRequest struct {
	Data map[string]any `json:"data,omitempty"`
	User *UserRequest   `json:"user,omitempty"`
}

// ExecutionsResponse lists executions produced by a single request or stored for a workflow.
type ExecutionsResponse struct {
	Executions []*models.WorkflowExecution `json:"executions"`
	Count      int                         `json:"count"`
}

func newExecutionsResponse(executions []*models.WorkflowExecution) ExecutionsResponse {
	if executions == nil {
		executions = []*models.WorkflowExecution{}
	}

	return ExecutionsResponse{Executions: executions, Count: len(executions)}
}
