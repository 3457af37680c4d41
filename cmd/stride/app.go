package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/cmd"
	"github.com/dukex/stride/pkg/conditions"
	"github.com/dukex/stride/pkg/config"
	"github.com/dukex/stride/pkg/engine"
	"github.com/dukex/stride/pkg/eventbus"
	"github.com/dukex/stride/pkg/events"
	"github.com/dukex/stride/pkg/otelhelper"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/registry"
	"github.com/dukex/stride/pkg/scheduler"
	"github.com/dukex/stride/pkg/triggers"
	"github.com/dukex/stride/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
)

// App holds the wired engine for the run command.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     clockwork.Clock
	validate  *validator.Validate
	bus       eventbus.EventBus
	store     persistence.Persistence
	records   io.Closer
	registry  *registry.Registry
	engine    *engine.Engine
	triggers  *triggers.Manager
	scheduler *scheduler.Scheduler
	http      *fiber.App
	shutdown  otelhelper.ShutdownFunc
}

func NewApp(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	var engineOpts []engine.Option

	if cfg.TracingEnabled {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		a.shutdown = shutdown
		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	bus, err := cmd.NewEventBus(cfg, logger)
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	a.bus = bus

	store, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	a.store = store

	records, closer, err := cmd.NewRecordWriter(cfg.RecordsURL, cfg.RecordsMaxLen, store)
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	a.records = closer
	a.registry = cmd.NewRegistry(logger, cmd.Handlers{Publisher: bus, Records: records, Clock: clock})

	loc := cfg.Location()

	a.engine, err = engine.New(
		conditions.NewEvaluator(clock, logger, conditions.WithLocation(loc)),
		actions.NewExecutor(a.registry, logger),
		clock,
		logger,
		append(engineOpts, engine.WithPublisher(bus))...,
	)
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	a.triggers = triggers.NewManager(clock, logger,
		triggers.WithLocation(loc),
		triggers.WithFanOut(cfg.HandlerLimit),
	)

	a.scheduler = scheduler.New(a.engine, clock, logger,
		scheduler.WithStore(store),
		scheduler.WithUserSelector(scheduler.NewStoreSelector(store)),
		scheduler.WithTriggerManager(a.triggers),
		scheduler.WithConcurrency(cfg.WorkerLimit),
	)

	if err := a.subscribe(); err != nil {
		return nil, a.abort(ctx, err)
	}

	handlers := web.NewAPIHandlers(a.engine, a.scheduler, a.triggers, store, a.registry, a.validate, clock)
	a.http = web.NewApp(handlers, true)

	return a, nil
}

// Start imports workflow files, schedules stored workflows and starts the
// event consumers. It does not serve HTTP.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.WorkflowsDir != "" {
		files, err := cmd.ImportWorkflows(ctx, a.cfg.WorkflowsDir, a.store, a.validate, a.registry)
		if err != nil {
			return err
		}

		for _, file := range files {
			if file.Err != nil {
				a.logger.WarnContext(ctx, "Skipping invalid workflow file", "path", file.Path, "error", file.Err)
			}
		}
	}

	if err := a.scheduler.Start(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Some workflows could not be scheduled", "error", err)
	}

	a.triggers.Start(ctx)

	if err := a.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	go a.cleanupLoop(ctx)

	a.logger.InfoContext(ctx, "Stride started", "scheduled", len(a.scheduler.Entries()))

	return nil
}

// Serve blocks serving the HTTP API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		if err := a.http.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.logger.Error("Failed to stop HTTP server", "error", err)
		}
	}()

	return a.http.Listen(":" + strconv.Itoa(a.cfg.Port))
}

func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.triggers != nil {
		a.triggers.Stop()
	}

	return a.abort(ctx, nil)
}

// abort releases whatever was opened so far and returns cause joined with the
// release errors.
func (a *App) abort(ctx context.Context, cause error) error {
	errs := []error{cause}

	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}

	if a.records != nil {
		errs = append(errs, a.records.Close())
	}

	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}

	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (a *App) subscribe() error {
	return errors.Join(
		a.bus.Handle(events.EventTriggeredEvent, a.onEventTriggered),
		a.bus.Handle(events.EmailRequestedEvent, a.onEmailRequested),
		a.bus.Handle(events.NotificationRequestedEvent, a.onNotificationRequested),
		a.bus.Handle(events.WorkflowExecutionFailedEvent, a.onExecutionFailed),
	)
}

// onEventTriggered feeds events published by other services into the trigger
// manager, which fans them out to the subscribed workflows.
func (a *App) onEventTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.EventTriggered)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	source := triggered.Source
	if source == "" {
		source = scheduler.SourceEvent
	}

	return a.triggers.TriggerEvent(ctx, triggered.EventType, triggered.EventData, triggered.User, source)
}

func (a *App) onEmailRequested(ctx context.Context, event any) error {
	email, ok := event.(*events.EmailRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	a.logger.InfoContext(ctx, "Email queued for delivery",
		"receipt_id", email.ReceiptID,
		"recipient", email.Recipient,
		"template", email.Template,
		"workflow_id", email.WorkflowID,
	)

	return nil
}

func (a *App) onNotificationRequested(ctx context.Context, event any) error {
	notification, ok := event.(*events.NotificationRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	a.logger.InfoContext(ctx, "Notification queued for delivery",
		"receipt_id", notification.ReceiptID,
		"user_id", notification.UserID,
		"channel", notification.Channel,
		"workflow_id", notification.WorkflowID,
	)

	return nil
}

func (a *App) onExecutionFailed(ctx context.Context, event any) error {
	finished, ok := event.(*events.WorkflowExecutionFinished)
	if !ok || finished.Execution == nil {
		return fmt.Errorf("unexpected event %T", event)
	}

	a.logger.WarnContext(ctx, "Workflow execution failed",
		"workflow_id", finished.Execution.WorkflowID,
		"execution_id", finished.Execution.ID,
		"error", finished.Execution.Error,
	)

	return nil
}

func (a *App) cleanupLoop(ctx context.Context) {
	ticker := a.clock.NewTicker(a.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			removed, err := a.engine.CleanupExecutions(a.cfg.ExecutionRetention)
			if err != nil {
				a.logger.ErrorContext(ctx, "Failed to clean up executions", "error", err)
				continue
			}

			if removed > 0 {
				a.logger.InfoContext(ctx, "Cleaned up executions", "removed", removed)
			}
		}
	}
}
