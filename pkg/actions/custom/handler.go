// Package custom runs named functions registered at startup for custom actions.
// Nothing is loaded at runtime: a name that was not registered is an error.
package custom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/template"
)

var ErrUnknownFunction = errors.New("custom function not registered")

type Func func(ctx context.Context, params map[string]any, event models.EventContext, user *models.UserContext) (any, error)

type Handler struct {
	logger *slog.Logger
	mu     sync.RWMutex
	funcs  map[string]Func
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger.With("module", "custom_action"),
		funcs:  make(map[string]Func),
	}
}

func (h *Handler) Register(name string, fn Func) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.funcs[name] = fn
}

func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.funcs))
	for name := range h.funcs {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Execute calls the function named by config "handler" with the interpolated "parameters".
func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	name, ok := actions.StringConfig(config, "handler")
	if !ok {
		return nil, actions.MissingConfig("handler")
	}

	h.mu.RLock()
	fn, ok := h.funcs[name]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	params := map[string]any{}
	if raw := actions.MapConfig(config, "parameters"); raw != nil {
		params = template.InterpolateValue(raw, event, user).(map[string]any)
	}

	h.logger.DebugContext(ctx, "running custom function", "handler", name)

	return fn(ctx, params, event, user)
}
