package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stride/pkg/mocks"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/triggers"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type call struct {
	workflowID string
	event      models.EventContext
	user       *models.UserContext
}

// spyEngine records runs and completes every one of them.
type spyEngine struct {
	mu    sync.Mutex
	calls []call
}

func (e *spyEngine) ExecuteWorkflow(
	_ context.Context,
	workflow *models.Workflow,
	event models.EventContext,
	user *models.UserContext,
) *models.WorkflowExecution {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, call{workflowID: workflow.ID, event: event, user: user})

	return &models.WorkflowExecution{
		ID:         workflow.ID + "-run",
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusCompleted,
		Context:    event,
	}
}

func (e *spyEngine) Calls() []call {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]call(nil), e.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cronWorkflow(id, expr string) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Name:    "Weekly check-in",
		Trigger: models.WorkflowTrigger{Type: models.TriggerTypeSchedule, Config: map[string]any{"cron": expr}},
		Actions: []models.WorkflowAction{{ID: "notify", Type: models.ActionTypeNotification}},
		Enabled: true,
	}
}

func eventWorkflow(id, eventType string) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Name:    "Event workflow",
		Trigger: models.WorkflowTrigger{Type: models.TriggerTypeEvent, Config: map[string]any{"eventType": eventType}},
		Actions: []models.WorkflowAction{{ID: "notify", Type: models.ActionTypeNotification}},
		Enabled: true,
	}
}

func webhookWorkflow(id, hookID, secret string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Webhook workflow",
		Trigger: models.WorkflowTrigger{
			Type:   models.TriggerTypeWebhook,
			Config: map[string]any{"webhookId": hookID, "secret": secret},
		},
		Actions: []models.WorkflowAction{{ID: "notify", Type: models.ActionTypeNotification}},
		Enabled: true,
	}
}

func TestScheduler_CronFiresOnlyOnMatchingDay(t *testing.T) {
	t.Parallel()

	// Monday 10:00, one hour after this week's slot.
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC))
	engine := &spyEngine{}
	s := New(engine, clock, discardLogger())
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.ScheduleWorkflow(cronWorkflow("weekly", "0 9 * * 1")))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC), entries[0].Next.UTC())

	// Tuesday 09:00.
	clock.Advance(23 * time.Hour)
	assert.Never(t, func() bool { return len(engine.Calls()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	// Next Monday 09:00.
	clock.Advance(6 * 24 * time.Hour)
	require.Eventually(t, func() bool { return len(engine.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	got := engine.Calls()[0]
	assert.Equal(t, "weekly", got.workflowID)
	assert.Equal(t, "scheduled:weekly", got.event.EventType)
	assert.Equal(t, SourceScheduler, got.event.Source)
	assert.Nil(t, got.user)

	// The job re-arms for the following week.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC), s.Entries()[0].Next.UTC())
}

func TestScheduler_CronTimezone(t *testing.T) {
	t.Parallel()

	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skip("timezone database unavailable")
	}

	// 08:00 in New York.
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC))
	s := New(&spyEngine{}, clock, discardLogger())
	t.Cleanup(s.Stop)

	wf := cronWorkflow("daily", "0 9 * * *")
	wf.Trigger.Config["timezone"] = "America/New_York"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.ScheduleWorkflow(wf))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	assert.True(t, time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC).Equal(s.Entries()[0].Next))
}

func TestScheduler_CronFansOutToSelectedUsers(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 11, 8, 59, 0, 0, time.UTC))
	engine := &spyEngine{}

	users := []*models.UserContext{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"}}

	selector := &mocks.MockUserSelector{}
	selector.On("SelectUsers", mock.Anything, mock.AnythingOfType("*models.Workflow")).Return(users, nil)

	s := New(engine, clock, discardLogger(), WithUserSelector(selector), WithConcurrency(2))
	t.Cleanup(s.Stop)

	wf := cronWorkflow("nudge", "0 9 * * *")
	wf.Trigger.Config["event"] = "inactivity_check"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.ScheduleWorkflow(wf))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return len(engine.Calls()) == 3 }, time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	for _, c := range engine.Calls() {
		require.NotNil(t, c.user)
		seen[c.user.UserID] = true
		assert.Equal(t, "inactivity_check", c.event.EventType)
		assert.Equal(t, "nudge", c.event.EventData["workflowId"])
	}

	assert.Len(t, seen, 3)
	selector.AssertExpectations(t)
}

func TestScheduler_CronSelectorError(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 11, 8, 59, 0, 0, time.UTC))
	engine := &spyEngine{}

	selector := &mocks.MockUserSelector{}
	selector.On("SelectUsers", mock.Anything, mock.Anything).Return(nil, errors.New("users unavailable"))

	s := New(engine, clock, discardLogger(), WithUserSelector(selector))
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.ScheduleWorkflow(cronWorkflow("nudge", "0 9 * * *")))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)

	// The job re-arms after the failed firing without running anything.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, engine.Calls())
	selector.AssertNumberOfCalls(t, "SelectUsers", 1)
}

func TestScheduler_ScheduleWorkflow_Errors(t *testing.T) {
	t.Parallel()

	badTimezone := cronWorkflow("tz", "0 9 * * *")
	badTimezone.Trigger.Config["timezone"] = "Mars/Olympus_Mons"

	tests := []struct {
		name     string
		workflow *models.Workflow
		wantErr  error
	}{
		{name: "nil", workflow: nil, wantErr: ErrNilWorkflow},
		{name: "invalid cron", workflow: cronWorkflow("bad", "every monday"), wantErr: models.ErrInvalidCron},
		{name: "six fields", workflow: cronWorkflow("bad", "0 0 9 * * 1"), wantErr: models.ErrInvalidCron},
		{name: "invalid timezone", workflow: badTimezone, wantErr: models.ErrInvalidTimezone},
		{name: "event without type", workflow: eventWorkflow("ev", ""), wantErr: models.ErrMissingEventType},
		{name: "webhook without id", workflow: webhookWorkflow("wh", "", ""), wantErr: models.ErrMissingWebhookID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(&spyEngine{}, clockwork.NewFakeClock(), discardLogger())
			t.Cleanup(s.Stop)

			err := s.ScheduleWorkflow(tt.workflow)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, s.Entries())
		})
	}
}

func TestScheduler_DisabledAndManualWorkflows(t *testing.T) {
	t.Parallel()

	s := New(&spyEngine{}, clockwork.NewFakeClock(), discardLogger())
	t.Cleanup(s.Stop)

	disabled := cronWorkflow("off", "0 9 * * *")
	disabled.Enabled = false

	manual := cronWorkflow("manual", "")
	manual.Trigger = models.WorkflowTrigger{Type: models.TriggerTypeManual}

	require.NoError(t, s.ScheduleWorkflow(disabled))
	require.NoError(t, s.ScheduleWorkflow(manual))
	assert.Empty(t, s.Entries())
}

func TestScheduler_TriggerEvent(t *testing.T) {
	t.Parallel()

	engine := &spyEngine{}
	s := New(engine, clockwork.NewFakeClock(), discardLogger())
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("welcome", "user_signup")))
	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("crm-sync", "user_signup")))
	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("goodbye", "user_deleted")))

	user := &models.UserContext{UserID: "u1"}
	executions := s.TriggerEvent(context.Background(), "user_signup", map[string]any{"plan": "pro"}, user)

	require.Len(t, executions, 2)
	assert.Equal(t, "welcome", executions[0].WorkflowID)
	assert.Equal(t, "crm-sync", executions[1].WorkflowID)

	for _, c := range engine.Calls() {
		assert.Same(t, user, c.user)
		assert.Equal(t, SourceEvent, c.event.Source)
		assert.Equal(t, "pro", c.event.EventData["plan"])
	}

	assert.Empty(t, s.TriggerEvent(context.Background(), "unknown", nil, nil))
}

func TestScheduler_RescheduleReplaces(t *testing.T) {
	t.Parallel()

	engine := &spyEngine{}
	s := New(engine, clockwork.NewFakeClock(), discardLogger())
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("welcome", "user_signup")))
	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("welcome", "user_verified")))

	assert.Empty(t, s.TriggerEvent(context.Background(), "user_signup", nil, nil))
	assert.Len(t, s.TriggerEvent(context.Background(), "user_verified", nil, nil), 1)

	disabled := eventWorkflow("welcome", "user_verified")
	disabled.Enabled = false
	require.NoError(t, s.ScheduleWorkflow(disabled))

	assert.Empty(t, s.TriggerEvent(context.Background(), "user_verified", nil, nil))
}

func TestScheduler_UnscheduleAndStop(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC))
	engine := &spyEngine{}
	s := New(engine, clock, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.ScheduleWorkflow(cronWorkflow("a", "0 9 * * *")))
	require.NoError(t, s.ScheduleWorkflow(cronWorkflow("b", "0 9 * * *")))
	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("c", "ping")))
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	s.UnscheduleWorkflow("a")
	s.UnscheduleWorkflow("does-not-exist")
	require.Len(t, s.Entries(), 2)

	s.Stop()
	assert.Empty(t, s.Entries())

	clock.Advance(2 * time.Hour)
	assert.Never(t, func() bool { return len(engine.Calls()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, s.TriggerEvent(context.Background(), "ping", nil, nil))
}

func TestScheduler_WebhookBinding(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	manager := triggers.NewManager(clock, discardLogger())
	engine := &spyEngine{}
	s := New(engine, clock, discardLogger(), WithTriggerManager(manager))
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleWorkflow(webhookWorkflow("stripe-paid", "stripe", "abc")))
	require.NoError(t, s.ScheduleWorkflow(webhookWorkflow("stripe-audit", "stripe", "ignored")))

	payload := []byte(`{"amount": 12}`)

	resp := manager.HandleWebhook(context.Background(), "stripe", map[string]string{}, payload)
	assert.Equal(t, triggers.WebhookResponse{Success: false, Message: triggers.MessageInvalidSignature}, resp)
	assert.Empty(t, engine.Calls())

	resp = manager.HandleWebhook(context.Background(), "stripe", map[string]string{"X-Signature": triggers.Sign("abc", payload)}, payload)
	assert.True(t, resp.Success)

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "webhook", calls[0].event.Source)
	assert.Equal(t, "webhook:stripe", calls[0].event.EventType)

	// The webhook stays while one workflow still uses it.
	s.UnscheduleWorkflow("stripe-paid")
	_, ok := manager.Webhook("stripe")
	assert.True(t, ok)

	s.UnscheduleWorkflow("stripe-audit")
	resp = manager.HandleWebhook(context.Background(), "stripe", nil, payload)
	assert.Equal(t, triggers.MessageWebhookNotFound, resp.Message)
}

func TestScheduler_EventsFromTriggerManager(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	manager := triggers.NewManager(clock, discardLogger())
	engine := &spyEngine{}
	s := New(engine, clock, discardLogger(), WithTriggerManager(manager))
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("summary", triggers.EventDailySummary)))
	require.NoError(t, s.ScheduleWorkflow(eventWorkflow("summary-2", triggers.EventDailySummary)))

	manager.CheckSystemEvents(context.Background(), time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))

	calls := engine.Calls()
	require.Len(t, calls, 2, "the scheduler subscribes once per event type")
	assert.Equal(t, "system", calls[0].event.Source)
}

func TestScheduler_RunWorkflow(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	manual := cronWorkflow("manual", "")
	manual.Trigger = models.WorkflowTrigger{Type: models.TriggerTypeManual}

	store.On("WorkflowByID", mock.Anything, "manual").Return(manual, nil)
	store.On("WorkflowByID", mock.Anything, "hook").Return(webhookWorkflow("hook", "gh", ""), nil)
	store.On("WorkflowByID", mock.Anything, "missing").
		Return(nil, persistence.NewWorkflowError("WorkflowByID", "missing", persistence.ErrWorkflowNotFound))

	engine := &spyEngine{}
	s := New(engine, clockwork.NewFakeClock(), discardLogger(), WithStore(store))

	execution, err := s.RunWorkflow(context.Background(), "manual", map[string]any{"reason": "test"}, &models.UserContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "manual", execution.WorkflowID)
	assert.Equal(t, SourceManual, execution.Context.Source)

	_, err = s.RunWorkflow(context.Background(), "missing", nil, nil)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = s.RunWebhookWorkflow(context.Background(), "manual", nil, nil)
	assert.ErrorIs(t, err, ErrNotWebhookWorkflow)

	execution, err = s.RunWebhookWorkflow(context.Background(), "hook", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "webhook:gh", execution.Context.EventType)
	assert.Equal(t, SourceWebhook, execution.Context.Source)

	_, err = New(engine, clockwork.NewFakeClock(), discardLogger()).RunWorkflow(context.Background(), "manual", nil, nil)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("Workflows", mock.Anything).Return([]*models.Workflow{
		eventWorkflow("ok", "ping"),
		cronWorkflow("broken", "not a cron"),
	}, nil)

	s := New(&spyEngine{}, clockwork.NewFakeClock(), discardLogger(), WithStore(store))
	t.Cleanup(s.Stop)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, models.ErrInvalidCron)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].WorkflowID)
	assert.Equal(t, "ping", entries[0].EventType)
}

func TestStoreSelector(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("Users", mock.Anything).Return([]*models.UserContext{
		{UserID: "free", SubscriptionTier: models.SubscriptionFree},
		{UserID: "premium", SubscriptionTier: models.SubscriptionPremium},
	}, nil)

	selector := NewStoreSelector(store)

	all, err := selector.SelectUsers(context.Background(), cronWorkflow("all", "0 9 * * *"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	targeted := cronWorkflow("premium-only", "0 9 * * *")
	targeted.Trigger.Config["audience"] = []any{"premium"}

	selected, err := selector.SelectUsers(context.Background(), targeted)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "premium", selected[0].UserID)
}
