package protocol

import (
	"context"

	"github.com/dukex/stride/pkg/models"
)

// EventHandler receives events fanned out by the trigger manager.
type EventHandler interface {
	Handle(ctx context.Context, event models.EventContext) error
}

type EventHandlerFunc func(ctx context.Context, event models.EventContext) error

func (f EventHandlerFunc) Handle(ctx context.Context, event models.EventContext) error {
	return f(ctx, event)
}

// UserSelector resolves the users a scheduled workflow runs for.
type UserSelector interface {
	SelectUsers(ctx context.Context, workflow *models.Workflow) ([]*models.UserContext, error)
}

// WorkflowLoader loads workflow definitions by id.
type WorkflowLoader interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
}
