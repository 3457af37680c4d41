// Package actions dispatches workflow actions to the handler registered for their type.
package actions

import (
	"context"
	"log/slog"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/registry"
)

type Executor struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewExecutor(registry *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.With("module", "action_executor"),
	}
}

// Execute runs one attempt of the action. An unregistered type returns an error
// wrapping registry.ErrNoHandler before anything is dispatched.
func (e *Executor) Execute(ctx context.Context, action models.WorkflowAction, event models.EventContext, user *models.UserContext) (any, error) {
	handler, err := e.registry.Handler(action.Type)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "executing action", "action_id", action.ID, "type", action.Type)

	config := action.Config
	if config == nil {
		config = map[string]any{}
	}

	return handler.Execute(ctx, config, event, user)
}
