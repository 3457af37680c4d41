// Package protocol defines the handler contracts plugged into the engine and the trigger manager.
package protocol

import (
	"context"

	"github.com/dukex/stride/pkg/models"
)

// ActionHandler performs one action type. A call is atomic from the engine's
// point of view: the engine never interrupts it, the handler decides what to do
// with a cancelled ctx.
type ActionHandler interface {
	Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error)

func (f ActionHandlerFunc) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	return f(ctx, config, event, user)
}

type workflowIDKey struct{}

// WithWorkflowID tags ctx with the id of the workflow whose actions run under it.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey{}, id)
}

// WorkflowID returns the workflow id set by WithWorkflowID, or "".
func WorkflowID(ctx context.Context) string {
	id, _ := ctx.Value(workflowIDKey{}).(string)

	return id
}
