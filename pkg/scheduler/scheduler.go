// Package scheduler binds workflows to their triggers: cron schedules, named
// events, webhooks and manual runs all end up as engine executions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/otelhelper"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/triggers"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	SourceScheduler = "scheduler"
	SourceEvent     = "event"
	SourceManual    = "manual"
	SourceWebhook   = "webhook"

	defaultConcurrency = 8
)

var (
	ErrNilWorkflow        = errors.New("workflow is nil")
	ErrNoStore            = errors.New("scheduler has no workflow store")
	ErrNotWebhookWorkflow = errors.New("workflow is not webhook triggered")
)

// Engine runs one workflow for one user.
type Engine interface {
	ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, event models.EventContext, user *models.UserContext) *models.WorkflowExecution
}

type Scheduler struct {
	engine      Engine
	store       persistence.WorkflowStore
	users       protocol.UserSelector
	triggers    *triggers.Manager
	clock       clockwork.Clock
	concurrency int
	tracer      trace.Tracer
	logger      *slog.Logger

	mu       sync.RWMutex
	jobs     map[string]*cronJob
	events   map[string][]*models.Workflow
	hooks    map[string]string // workflow id -> webhook id
	hookRefs map[string]int
	attached map[string]struct{}
}

type Option func(*Scheduler)

// WithStore enables Start, RunWorkflow and RunWebhookWorkflow.
func WithStore(store persistence.WorkflowStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithUserSelector sets who a cron firing runs for. Without one, every firing
// runs once with no user.
func WithUserSelector(users protocol.UserSelector) Option {
	return func(s *Scheduler) { s.users = users }
}

// WithTriggerManager binds webhook workflows to the manager's webhooks and
// subscribes event workflows to the events it dispatches.
func WithTriggerManager(manager *triggers.Manager) Option {
	return func(s *Scheduler) { s.triggers = manager }
}

// WithConcurrency bounds parallel executions of one fan-out.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func New(engine Engine, clock clockwork.Clock, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:      engine,
		clock:       clock,
		concurrency: defaultConcurrency,
		tracer:      otelhelper.Tracer("stride/scheduler"),
		logger:      logger.With("module", "scheduler"),
		jobs:        make(map[string]*cronJob),
		events:      make(map[string][]*models.Workflow),
		hooks:       make(map[string]string),
		hookRefs:    make(map[string]int),
		attached:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start schedules every workflow in the store. A workflow that cannot be
// scheduled is logged and skipped; the joined errors are returned.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}

	workflows, err := s.store.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}

	var errs []error

	for _, workflow := range workflows {
		if err := s.ScheduleWorkflow(workflow); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule workflow", "workflow_id", workflow.ID, "error", err)
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))
		}
	}

	s.logger.InfoContext(ctx, "scheduler started", "workflows", len(workflows), "failed", len(errs))

	return errors.Join(errs...)
}

// ScheduleWorkflow registers workflow under its trigger, replacing an earlier
// registration with the same id. Disabled workflows are only unscheduled.
func (s *Scheduler) ScheduleWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrNilWorkflow
	}

	s.UnscheduleWorkflow(workflow.ID)

	logger := s.logger.With("workflow_id", workflow.ID, "trigger", workflow.Trigger.Type)

	if !workflow.Enabled {
		logger.Info("workflow disabled, not scheduling")
		return nil
	}

	switch workflow.Trigger.Type {
	case models.TriggerTypeSchedule:
		return s.scheduleCron(workflow, logger)
	case models.TriggerTypeEvent:
		eventType := workflow.Trigger.EventType()
		if eventType == "" {
			return models.ErrMissingEventType
		}

		s.subscribe(eventType, workflow)
		logger.Info("workflow subscribed", "event_type", eventType)
	case models.TriggerTypeWebhook:
		return s.bindWebhook(workflow, logger)
	case models.TriggerTypeManual:
		logger.Debug("manual workflow, nothing to schedule")
	default:
		return fmt.Errorf("unknown trigger type %q", workflow.Trigger.Type)
	}

	return nil
}

// UnscheduleWorkflow removes every binding of the workflow with the given id.
// Unknown ids are ignored.
func (s *Scheduler) UnscheduleWorkflow(id string) {
	s.mu.Lock()

	job := s.jobs[id]
	delete(s.jobs, id)

	for eventType, workflows := range s.events {
		kept := workflows[:0]
		for _, wf := range workflows {
			if wf.ID != id {
				kept = append(kept, wf)
			}
		}

		if len(kept) == 0 {
			delete(s.events, eventType)
		} else {
			s.events[eventType] = kept
		}
	}

	hookID, hooked := s.hooks[id]
	release := false

	if hooked {
		delete(s.hooks, id)

		s.hookRefs[hookID]--
		if s.hookRefs[hookID] <= 0 {
			delete(s.hookRefs, hookID)
			release = true
		}
	}

	s.mu.Unlock()

	if job != nil {
		job.stop()
	}

	if release && s.triggers != nil {
		s.triggers.UnregisterWebhook(hookID)
	}

	if job != nil || hooked {
		s.logger.Info("workflow unscheduled", "workflow_id", id)
	}
}

// Stop halts every cron job and clears all registrations.
func (s *Scheduler) Stop() {
	s.mu.Lock()

	jobs := s.jobs
	hooks := s.hookRefs

	s.jobs = make(map[string]*cronJob)
	s.events = make(map[string][]*models.Workflow)
	s.hooks = make(map[string]string)
	s.hookRefs = make(map[string]int)

	s.mu.Unlock()

	for _, job := range jobs {
		job.stop()
	}

	if s.triggers != nil {
		for hookID := range hooks {
			s.triggers.UnregisterWebhook(hookID)
		}
	}

	s.logger.Info("scheduler stopped", "jobs", len(jobs))
}

// Handle runs the workflows subscribed to event.EventType. It makes the
// scheduler a protocol.EventHandler for the trigger manager.
func (s *Scheduler) Handle(ctx context.Context, event models.EventContext) error {
	var errs []error

	for _, execution := range s.dispatch(ctx, event) {
		if execution.Status == models.ExecutionStatusFailed {
			errs = append(errs, fmt.Errorf("workflow %s: %s", execution.WorkflowID, execution.Error))
		}
	}

	return errors.Join(errs...)
}

// TriggerEvent runs every enabled workflow subscribed to eventType once and
// returns the executions.
func (s *Scheduler) TriggerEvent(
	ctx context.Context,
	eventType string,
	data map[string]any,
	user *models.UserContext,
) []*models.WorkflowExecution {
	if data == nil {
		data = map[string]any{}
	}

	return s.dispatch(ctx, models.EventContext{
		EventType: eventType,
		EventData: data,
		Timestamp: s.clock.Now(),
		Source:    SourceEvent,
		User:      user,
	})
}

// RunWorkflow loads the workflow with the given id and runs it once.
func (s *Scheduler) RunWorkflow(
	ctx context.Context,
	id string,
	data map[string]any,
	user *models.UserContext,
) (*models.WorkflowExecution, error) {
	workflow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, workflow, string(models.TriggerTypeManual), SourceManual, data, user), nil
}

// RunWebhookWorkflow loads a webhook triggered workflow and runs it once with
// the webhook's event type.
func (s *Scheduler) RunWebhookWorkflow(
	ctx context.Context,
	id string,
	data map[string]any,
	user *models.UserContext,
) (*models.WorkflowExecution, error) {
	workflow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Trigger.Type != models.TriggerTypeWebhook {
		return nil, fmt.Errorf("%w: %s", ErrNotWebhookWorkflow, id)
	}

	return s.run(ctx, workflow, webhookEventType(workflow), SourceWebhook, data, user), nil
}

// Entry describes one scheduled workflow.
type Entry struct {
	WorkflowID string
	Trigger    models.TriggerType
	// EventType is set for event and webhook workflows.
	EventType string
	// Next is the next cron firing; zero for other triggers.
	Next time.Time
}

// Entries lists the current registrations ordered by workflow id.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []Entry

	for id, job := range s.jobs {
		entries = append(entries, Entry{WorkflowID: id, Trigger: models.TriggerTypeSchedule, Next: job.nextRun()})
	}

	for eventType, workflows := range s.events {
		for _, wf := range workflows {
			entries = append(entries, Entry{WorkflowID: wf.ID, Trigger: wf.Trigger.Type, EventType: eventType})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].WorkflowID < entries[j].WorkflowID })

	return entries
}

func (s *Scheduler) load(ctx context.Context, id string) (*models.Workflow, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	workflow, err := s.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (s *Scheduler) run(
	ctx context.Context,
	workflow *models.Workflow,
	eventType string,
	source string,
	data map[string]any,
	user *models.UserContext,
) *models.WorkflowExecution {
	if data == nil {
		data = map[string]any{}
	}

	return s.engine.ExecuteWorkflow(ctx, workflow, models.EventContext{
		EventType: eventType,
		EventData: data,
		Timestamp: s.clock.Now(),
		Source:    source,
		User:      user,
	}, user)
}

func (s *Scheduler) subscribe(eventType string, workflow *models.Workflow) {
	s.mu.Lock()
	s.events[eventType] = append(s.events[eventType], workflow)

	_, attached := s.attached[eventType]
	if !attached && s.triggers != nil {
		s.attached[eventType] = struct{}{}
	}
	s.mu.Unlock()

	if !attached && s.triggers != nil {
		s.triggers.RegisterEventHandler(eventType, s)
	}
}

func (s *Scheduler) bindWebhook(workflow *models.Workflow, logger *slog.Logger) error {
	hookID := workflow.Trigger.WebhookID()
	if hookID == "" {
		return models.ErrMissingWebhookID
	}

	eventType := webhookEventType(workflow)

	if s.triggers != nil {
		if existing, ok := s.triggers.Webhook(hookID); ok {
			eventType = existing.EventType
		} else {
			err := s.triggers.RegisterWebhook(hookID, triggers.Webhook{
				Secret:    workflow.Trigger.WebhookSecret(),
				Schema:    workflow.Trigger.WebhookSchema(),
				EventType: eventType,
			})
			if err != nil && !errors.Is(err, triggers.ErrWebhookExists) {
				return err
			}
		}
	}

	s.mu.Lock()
	s.hooks[workflow.ID] = hookID
	s.hookRefs[hookID]++
	s.mu.Unlock()

	s.subscribe(eventType, workflow)
	logger.Info("workflow bound to webhook", "webhook_id", hookID, "event_type", eventType)

	return nil
}

func webhookEventType(workflow *models.Workflow) string {
	if eventType := workflow.Trigger.EventType(); eventType != "" {
		return eventType
	}

	return triggers.WebhookEventType(workflow.Trigger.WebhookID())
}

// dispatch runs the enabled workflows subscribed to event.EventType concurrently.
// Executions come back in subscription order.
func (s *Scheduler) dispatch(ctx context.Context, event models.EventContext) []*models.WorkflowExecution {
	s.mu.RLock()
	var workflows []*models.Workflow
	for _, wf := range s.events[event.EventType] {
		if wf.Enabled {
			workflows = append(workflows, wf)
		}
	}
	s.mu.RUnlock()

	logger := s.logger.With("event_type", event.EventType, "source", event.Source)

	if len(workflows) == 0 {
		logger.DebugContext(ctx, "no workflows subscribed to event")
		return nil
	}

	executions := make([]*models.WorkflowExecution, len(workflows))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i, wf := range workflows {
		g.Go(func() error {
			executions[i] = s.engine.ExecuteWorkflow(ctx, wf, event, event.User)
			return nil
		})
	}

	_ = g.Wait()

	logger.InfoContext(ctx, "event handled", "workflows", len(workflows))

	return executions
}

// fire runs a scheduled workflow once per selected user.
func (s *Scheduler) fire(ctx context.Context, workflow *models.Workflow, scheduledAt time.Time) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.fire",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(workflow.Trigger.Type)),
	)
	defer span.End()

	logger := s.logger.With("workflow_id", workflow.ID, "scheduled_at", scheduledAt)

	event := models.EventContext{
		EventType: ScheduledEventType(workflow),
		EventData: map[string]any{
			"workflowId":  workflow.ID,
			"scheduledAt": scheduledAt,
		},
		Timestamp: s.clock.Now(),
		Source:    SourceScheduler,
	}

	users := []*models.UserContext{nil}

	if s.users != nil {
		selected, err := s.users.SelectUsers(ctx, workflow)
		if err != nil {
			logger.ErrorContext(ctx, "failed to select users", "error", err)
			otelhelper.SetError(span, err)

			return
		}

		users = selected
	}

	logger.InfoContext(ctx, "cron fired", "users", len(users))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, user := range users {
		g.Go(func() error {
			execution := s.engine.ExecuteWorkflow(ctx, workflow, event, user)
			if execution.Status != models.ExecutionStatusCompleted {
				attrs := []any{"execution_id", execution.ID, "status", execution.Status, "error", execution.Error}
				if user != nil {
					attrs = append(attrs, "user_id", user.UserID)
				}

				logger.WarnContext(ctx, "scheduled execution did not complete", attrs...)
			}

			return nil
		})
	}

	_ = g.Wait()
}

// ScheduledEventType is the event type stamped on cron firings of workflow:
// the trigger's "event" config, or "scheduled:<workflow id>".
func ScheduledEventType(workflow *models.Workflow) string {
	if eventType := workflow.Trigger.ScheduledEvent(); eventType != "" {
		return eventType
	}

	return "scheduled:" + workflow.ID
}

func (s *Scheduler) scheduleCron(workflow *models.Workflow, logger *slog.Logger) error {
	schedule, err := models.ParseCron(workflow.Trigger.CronExpression())
	if err != nil {
		return err
	}

	loc, err := workflow.Trigger.Location()
	if err != nil {
		return err
	}

	job := newCronJob(workflow, schedule, loc)

	s.mu.Lock()
	s.jobs[workflow.ID] = job
	s.mu.Unlock()

	go s.runJob(job)

	logger.Info("workflow scheduled",
		"cron", workflow.Trigger.CronExpression(),
		"timezone", loc.String(),
	)

	return nil
}

// runJob sleeps on the clock until the next firing, runs it to completion and
// repeats. A firing that outlasts the interval delays the next one instead of
// overlapping it.
func (s *Scheduler) runJob(job *cronJob) {
	defer close(job.done)

	for {
		now := s.clock.Now()
		next := job.schedule.Next(now.In(job.location))
		job.setNext(next)

		timer := s.clock.NewTimer(next.Sub(now))

		select {
		case <-job.ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			s.fire(job.ctx, job.workflow, next)
		}
	}
}

type cronJob struct {
	workflow *models.Workflow
	schedule cron.Schedule
	location *time.Location

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	next time.Time
}

func newCronJob(workflow *models.Workflow, schedule cron.Schedule, loc *time.Location) *cronJob {
	ctx, cancel := context.WithCancel(context.Background())

	return &cronJob{
		workflow: workflow,
		schedule: schedule,
		location: loc,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (j *cronJob) stop() {
	j.cancel()
	<-j.done
}

func (j *cronJob) setNext(t time.Time) {
	j.mu.Lock()
	j.next = t
	j.mu.Unlock()
}

func (j *cronJob) nextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.next
}
