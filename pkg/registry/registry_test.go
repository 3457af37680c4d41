package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(result string) protocol.ActionHandler {
	return protocol.ActionHandlerFunc(func(context.Context, map[string]any, models.EventContext, *models.UserContext) (any, error) {
		return result, nil
	})
}

func TestRegistry_Handler(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.Register(models.ActionTypeEmail, okHandler("sent"))

	handler, err := r.Handler(models.ActionTypeEmail)
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), nil, models.EventContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sent", result)

	_, err = r.Handler(models.ActionTypeWebhook)
	require.ErrorIs(t, err, ErrNoHandler)
	assert.Contains(t, err.Error(), `no handler for type "webhook"`)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.Register(models.ActionTypeCustom, okHandler("first"))
	r.Register(models.ActionTypeCustom, okHandler("second"))

	handler, err := r.Handler(models.ActionTypeCustom)
	require.NoError(t, err)

	result, _ := handler.Execute(context.Background(), nil, models.EventContext{}, nil)
	assert.Equal(t, "second", result)
}

func TestRegistry_TypesAndCheckWorkflow(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.Register(models.ActionTypeWebhook, okHandler(""))
	r.Register(models.ActionTypeEmail, okHandler(""))

	assert.Equal(t, []models.ActionType{models.ActionTypeEmail, models.ActionTypeWebhook}, r.Types())

	wf := &models.Workflow{Actions: []models.WorkflowAction{
		{ID: "a1", Type: models.ActionTypeEmail},
		{ID: "a2", Type: models.ActionTypeAIAnalysis},
	}}

	err := r.CheckWorkflow(wf)
	require.ErrorIs(t, err, ErrNoHandler)
	assert.Contains(t, err.Error(), "a2")
}
