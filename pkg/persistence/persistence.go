// Package persistence provides the storage abstraction for workflow definitions and user profiles.
package persistence

import (
	"context"

	"github.com/dukex/stride/pkg/models"
)

// WorkflowStore loads and saves workflow definitions. WorkflowByID returns an
// error matching ErrWorkflowNotFound for unknown ids.
type WorkflowStore interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// UserStore loads and saves the user profiles workflows run for. UserByID
// returns an error matching ErrUserNotFound for unknown ids.
type UserStore interface {
	Users(ctx context.Context) ([]*models.UserContext, error)
	UserByID(ctx context.Context, id string) (*models.UserContext, error)
	SaveUser(ctx context.Context, user *models.UserContext) error
}

type Persistence interface {
	WorkflowStore
	UserStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
