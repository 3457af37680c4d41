// Package database writes interpolated records into an external store.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/template"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Writer persists action records. Implemented by the PostgreSQL persistence and by RedisStreamWriter.
type Writer interface {
	WriteRecord(ctx context.Context, record models.ActionRecord) error
}

type Handler struct {
	writer Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewHandler(writer Writer, clock clockwork.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		writer: writer,
		clock:  clock,
		logger: logger.With("module", "database_action"),
	}
}

// Execute requires "table" and "action". Every string in "data" is interpolated,
// {{event.timestamp}} included.
func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	table, ok := actions.StringConfig(config, "table")
	if !ok {
		return nil, actions.MissingConfig("table")
	}

	op, ok := actions.StringConfig(config, "action")
	if !ok {
		return nil, actions.MissingConfig("action")
	}

	data := map[string]any{}
	if raw := actions.MapConfig(config, "data"); raw != nil {
		data = template.InterpolateValue(raw, event, user).(map[string]any)
	}

	record := models.ActionRecord{
		ID:        uuid.NewString(),
		Table:     table,
		Action:    op,
		Data:      data,
		WrittenAt: h.clock.Now().UTC(),
	}

	if user != nil {
		record.UserID = user.UserID
	}

	record.WorkflowID = protocol.WorkflowID(ctx)
	if wf, ok := event.EventData["workflowId"].(string); ok && record.WorkflowID == "" {
		record.WorkflowID = wf
	}

	if err := h.writer.WriteRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("write %s record to %s: %w", op, table, err)
	}

	h.logger.InfoContext(ctx, "record written", "table", table, "action", op, "record_id", record.ID)

	return record, nil
}
