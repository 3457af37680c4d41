// Package engine runs workflows: it gates on conditions, executes actions in order
// with retry, and keeps every execution in an in-memory registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stride/pkg/eventbus"
	"github.com/dukex/stride/pkg/events"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/otelhelper"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/registry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/qmuntal/stateless"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrWorkflowDisabled = errors.New("workflow is disabled")
	ErrActionPanicked   = errors.New("action panicked")
)

// ConditionEvaluator decides whether a workflow's actions run.
type ConditionEvaluator interface {
	Evaluate(conditions []models.WorkflowCondition, event models.EventContext, user *models.UserContext) bool
}

// ActionExecutor performs one attempt of an action.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.WorkflowAction, event models.EventContext, user *models.UserContext) (any, error)
}

type Engine struct {
	evaluator ConditionEvaluator
	executor  ActionExecutor
	store     *ExecutionStore
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
	tracer    trace.Tracer
	logger    *slog.Logger
}

type Option func(*Engine)

// WithPublisher publishes a lifecycle event for every finished execution.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func New(
	evaluator ConditionEvaluator,
	executor ActionExecutor,
	clock clockwork.Clock,
	logger *slog.Logger,
	opts ...Option,
) (*Engine, error) {
	store, err := NewExecutionStore()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		evaluator: evaluator,
		executor:  executor,
		store:     store,
		clock:     clock,
		tracer:    otelhelper.Tracer("stride/engine"),
		logger:    logger.With("module", "engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// ExecuteWorkflow runs workflow once for event and user and returns a snapshot of the
// terminal execution. It never returns nil: every failure is recorded on the execution.
func (e *Engine) ExecuteWorkflow(
	ctx context.Context,
	workflow *models.Workflow,
	event models.EventContext,
	user *models.UserContext,
) *models.WorkflowExecution {
	if event.User == nil {
		event.User = user
	}

	execution := &models.WorkflowExecution{
		ID:              uuid.NewString(),
		WorkflowID:      workflow.ID,
		TriggeredBy:     workflow.Trigger.Redacted(),
		Status:          models.ExecutionStatusPending,
		Context:         event,
		ExecutedActions: make([]models.ActionExecution, 0, len(workflow.Actions)),
		StartedAt:       e.clock.Now(),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.EventTypeKey, event.EventType),
		attribute.String(otelhelper.EventSourceKey, event.Source),
	)
	defer span.End()

	ctx = protocol.WithWorkflowID(ctx, workflow.ID)

	logger := e.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)
	if user != nil {
		logger = logger.With("user_id", user.UserID)
	}

	lifecycle := newLifecycle(execution)
	e.fire(ctx, lifecycle, triggerStart, logger)
	e.save(execution, logger)

	logger.InfoContext(ctx, "execution started", "event_type", event.EventType, "source", event.Source)

	switch {
	case !workflow.Enabled:
		execution.Error = ErrWorkflowDisabled.Error()
		e.fire(ctx, lifecycle, triggerFail, logger)
	case !e.evaluator.Evaluate(workflow.Conditions, event, user):
		logger.InfoContext(ctx, "conditions not met, skipping actions")
		e.skipAll(execution, workflow)
		e.fire(ctx, lifecycle, triggerComplete, logger)
	default:
		e.runActions(ctx, lifecycle, execution, workflow, event, user, logger)
	}

	e.finish(ctx, execution, span, logger)

	return execution.Clone()
}

func (e *Engine) runActions(
	ctx context.Context,
	lifecycle *stateless.StateMachine,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	event models.EventContext,
	user *models.UserContext,
	logger *slog.Logger,
) {
	for _, action := range workflow.Actions {
		if err := ctx.Err(); err != nil {
			execution.Error = err.Error()
			e.fire(ctx, lifecycle, triggerCancel, logger)

			return
		}

		result, err := e.runAction(ctx, action, event, user, logger)
		execution.ExecutedActions = append(execution.ExecutedActions, result)
		e.save(execution, logger)

		if result.Status != models.ActionStatusFailed {
			continue
		}

		// A context that ends during a backoff sleep cancels the run instead of
		// counting as exhausted retries.
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.WarnContext(ctx, "execution cancelled during action", "action_id", action.ID, "error", err)
			execution.Error = ctxErr.Error()
			e.fire(ctx, lifecycle, triggerCancel, logger)

			return
		}

		if action.RetryConfig == nil || errors.Is(err, registry.ErrNoHandler) {
			logger.WarnContext(ctx, "action failed, aborting execution", "action_id", action.ID, "error", err)
			execution.Error = result.Error
			e.fire(ctx, lifecycle, triggerFail, logger)

			return
		}

		logger.WarnContext(ctx, "action failed after retries, continuing",
			"action_id", action.ID,
			"attempts", result.Attempts,
			"error", err,
		)
	}

	e.fire(ctx, lifecycle, triggerComplete, logger)
}

// runAction attempts the action once and, when it has a RetryConfig, up to
// MaxAttempts-1 more times. Handler lookup errors are never retried.
func (e *Engine) runAction(
	ctx context.Context,
	action models.WorkflowAction,
	event models.EventContext,
	user *models.UserContext,
	logger *slog.Logger,
) (models.ActionExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.action",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
	)
	defer span.End()

	started := e.clock.Now()
	record := models.ActionExecution{
		ActionID:   action.ID,
		Status:     models.ActionStatusRunning,
		ExecutedAt: started,
	}

	var result any

	err := retry.Do(ctx, backoffFor(action.RetryConfig), func(ctx context.Context) error {
		res, err := e.attempt(ctx, action, event, user)
		if errors.Is(err, registry.ErrNoHandler) {
			return err
		}

		record.Attempts++
		result = res

		if err == nil {
			return nil
		}

		logger.DebugContext(ctx, "action attempt failed", "action_id", action.ID, "attempt", record.Attempts, "error", err)

		if action.RetryConfig == nil {
			return err
		}

		return retry.RetryableError(err)
	})

	record.Result = result
	record.Duration = e.clock.Since(started)
	span.SetAttributes(attribute.Int(otelhelper.AttemptsKey, record.Attempts))

	if err != nil {
		record.Status = models.ActionStatusFailed
		record.Error = err.Error()
		otelhelper.SetError(span, err)

		return record, err
	}

	record.Status = models.ActionStatusCompleted

	return record, nil
}

// attempt calls the executor once. A panicking handler becomes an attempt error
// so the retry and abort rules apply to it.
func (e *Engine) attempt(
	ctx context.Context,
	action models.WorkflowAction,
	event models.EventContext,
	user *models.UserContext,
) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrActionPanicked, r)
		}
	}()

	return e.executor.Execute(ctx, action, event, user)
}

func (e *Engine) skipAll(execution *models.WorkflowExecution, workflow *models.Workflow) {
	now := e.clock.Now()

	for _, action := range workflow.Actions {
		execution.ExecutedActions = append(execution.ExecutedActions, models.ActionExecution{
			ActionID:   action.ID,
			Status:     models.ActionStatusSkipped,
			ExecutedAt: now,
		})
	}
}

func (e *Engine) fire(ctx context.Context, sm *stateless.StateMachine, trigger string, logger *slog.Logger) {
	if err := sm.FireCtx(ctx, trigger); err != nil {
		logger.ErrorContext(ctx, "invalid execution transition", "trigger", trigger, "error", err)
	}
}

func (e *Engine) save(execution *models.WorkflowExecution, logger *slog.Logger) {
	if err := e.store.Put(execution); err != nil {
		logger.Error("failed to store execution", "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, execution *models.WorkflowExecution, span trace.Span, logger *slog.Logger) {
	completedAt := e.clock.Now()
	execution.CompletedAt = &completedAt
	execution.Duration = completedAt.Sub(execution.StartedAt)

	e.save(execution, logger)

	span.SetAttributes(attribute.String("stride.execution.status", string(execution.Status)))

	if execution.Status != models.ExecutionStatusCompleted {
		otelhelper.SetError(span, errors.New(execution.Error))
	}

	logger.InfoContext(ctx, "execution finished",
		"status", execution.Status,
		"duration", execution.Duration,
		"actions", len(execution.ExecutedActions),
	)

	if e.publisher == nil {
		return
	}

	eventType := events.ExecutionEventType(execution.Status)

	err := e.publisher.Publish(context.WithoutCancel(ctx), execution.WorkflowID, events.WorkflowExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:         execution.ID,
			Type:       eventType,
			Timestamp:  completedAt,
			WorkflowID: execution.WorkflowID,
		},
		Execution: execution.Clone(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to publish execution event", "event_type", eventType, "error", err)
	}
}

// GetExecution returns a snapshot of the execution with the given id.
func (e *Engine) GetExecution(id string) (*models.WorkflowExecution, bool) {
	return e.store.Get(id)
}

// ListExecutions returns executions newest first; an empty workflowID lists all of them.
func (e *Engine) ListExecutions(workflowID string) []*models.WorkflowExecution {
	return e.store.List(workflowID)
}

// CleanupExecutions drops executions that started more than olderThan ago.
// Calling it repeatedly is safe.
func (e *Engine) CleanupExecutions(olderThan time.Duration) (int, error) {
	removed, err := e.store.DeleteStartedBefore(e.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup executions: %w", err)
	}

	if removed > 0 {
		e.logger.Info("executions cleaned up", "removed", removed, "older_than", olderThan)
	}

	return removed, nil
}
