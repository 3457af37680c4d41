// Package registry maps action types to their handlers.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
)

// ErrNoHandler is returned for action types nothing was registered for. It is never retried.
var ErrNoHandler = errors.New("no handler for type")

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.ActionType]protocol.ActionHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		handlers: make(map[models.ActionType]protocol.ActionHandler),
	}
}

// Register binds a handler to an action type, replacing any previous binding.
func (r *Registry) Register(actionType models.ActionType, handler protocol.ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[actionType]; exists {
		r.logger.Warn("replacing action handler", "type", actionType)
	}

	r.handlers[actionType] = handler
}

func (r *Registry) Handler(actionType models.ActionType) (protocol.ActionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoHandler, actionType)
	}

	return handler, nil
}

func (r *Registry) IsRegistered(actionType models.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[actionType]

	return ok
}

// Types returns the registered action types, sorted.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// CheckWorkflow reports the first action whose type has no handler.
func (r *Registry) CheckWorkflow(workflow *models.Workflow) error {
	for _, action := range workflow.Actions {
		if !r.IsRegistered(action.Type) {
			return fmt.Errorf("action %s: %w %q", action.ID, ErrNoHandler, action.Type)
		}
	}

	return nil
}
