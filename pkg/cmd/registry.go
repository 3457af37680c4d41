package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dukex/stride/pkg/actions/aianalysis"
	"github.com/dukex/stride/pkg/actions/custom"
	"github.com/dukex/stride/pkg/actions/database"
	"github.com/dukex/stride/pkg/actions/email"
	"github.com/dukex/stride/pkg/actions/notification"
	"github.com/dukex/stride/pkg/actions/webhook"
	"github.com/dukex/stride/pkg/eventbus"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/registry"
	"github.com/jonboulle/clockwork"
)

// Handlers are the dependencies of the built-in action handlers.
type Handlers struct {
	Publisher eventbus.EventPublisher
	// Records is optional; without it database actions are not registered.
	Records database.Writer
	Clock   clockwork.Clock
	Custom  *custom.Handler
}

func registerNativeActions(reg *registry.Registry, deps Handlers, logger *slog.Logger) {
	reg.Register(models.ActionTypeEmail, email.NewHandler(deps.Publisher, deps.Clock, logger))
	reg.Register(models.ActionTypeNotification, notification.NewHandler(deps.Publisher, deps.Clock, logger))
	reg.Register(models.ActionTypeAIAnalysis, aianalysis.NewHandler(deps.Clock, logger))
	reg.Register(models.ActionTypeWebhook, webhook.NewHandler(deps.Clock, logger))

	if deps.Records != nil {
		reg.Register(models.ActionTypeDatabase, database.NewHandler(deps.Records, deps.Clock, logger))
	} else {
		logger.Warn("no record writer configured, database actions are disabled")
	}

	customHandler := deps.Custom
	if customHandler == nil {
		customHandler = custom.NewHandler(logger)
	}

	registerNativeFunctions(customHandler, logger)
	reg.Register(models.ActionTypeCustom, customHandler)
}

// registerNativeFunctions adds the custom functions every deployment ships with.
func registerNativeFunctions(h *custom.Handler, logger *slog.Logger) {
	h.Register("log", func(ctx context.Context, params map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
		attrs := []any{"event_type", event.EventType, "params", params}
		if user != nil {
			attrs = append(attrs, "user_id", user.UserID)
		}

		logger.InfoContext(ctx, "custom log action", attrs...)

		return params, nil
	})
}

func NewRegistry(logger *slog.Logger, deps Handlers) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerNativeActions(reg, deps, logger)

	return reg
}

// NewRecordWriter picks the writer behind database actions: a Redis stream when
// recordsURL is a redis URL, otherwise the store itself when it accepts records.
// The returned closer is nil unless a new connection was opened.
func NewRecordWriter(recordsURL string, maxLen int64, store persistence.Persistence) (database.Writer, io.Closer, error) {
	if strings.HasPrefix(recordsURL, "redis://") || strings.HasPrefix(recordsURL, "rediss://") {
		writer, err := database.NewRedisStreamWriter(recordsURL, maxLen)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis record writer: %w", err)
		}

		return writer, writer, nil
	}

	if recordsURL != "" {
		return nil, nil, fmt.Errorf("unsupported records url: %s", recordsURL)
	}

	if writer, ok := store.(database.Writer); ok {
		return writer, nil, nil
	}

	return nil, nil, nil
}
