package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/conditions"
	"github.com/dukex/stride/pkg/engine"
	"github.com/dukex/stride/pkg/mocks"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence/file"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/dukex/stride/pkg/registry"
	"github.com/dukex/stride/pkg/scheduler"
	"github.com/dukex/stride/pkg/testutil"
	"github.com/dukex/stride/pkg/triggers"
	"github.com/dukex/stride/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app       *fiber.App
	scheduler *scheduler.Scheduler
	sent      *atomic.Int32
}

func setupTestApp(t *testing.T, workflows ...*models.Workflow) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC))

	sent := &atomic.Int32{}
	reg := registry.NewRegistry(logger)
	reg.Register(models.ActionTypeNotification, protocol.ActionHandlerFunc(
		func(context.Context, map[string]any, models.EventContext, *models.UserContext) (any, error) {
			sent.Add(1)

			return "sent", nil
		},
	))

	eng, err := engine.New(conditions.NewEvaluator(clock, logger), actions.NewExecutor(reg, logger), clock, logger)
	require.NoError(t, err)

	store := file.NewPersistence(t.TempDir())
	manager := triggers.NewManager(clock, logger)
	sched := scheduler.New(eng, clock, logger,
		scheduler.WithStore(store),
		scheduler.WithTriggerManager(manager),
	)
	t.Cleanup(sched.Stop)

	for _, workflow := range workflows {
		require.NoError(t, store.SaveWorkflow(context.Background(), workflow))
		require.NoError(t, sched.ScheduleWorkflow(workflow))
	}

	handlers := web.NewAPIHandlers(
		eng, sched, manager, store, reg,
		validator.New(validator.WithRequiredStructEnabled()),
		clock,
	)

	return &testApp{app: web.NewApp(handlers, false), scheduler: sched, sent: sent}
}

func (a *testApp) do(t *testing.T, method, path string, body []byte, headers map[string]string) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func manualWorkflow(id string) *models.Workflow {
	return testutil.CreateTestWorkflow(testutil.WithID(id))
}

func signupWorkflow(id string) *models.Workflow {
	return testutil.CreateTestWorkflow(testutil.WithID(id), testutil.WithEventTrigger("user_signup"))
}

func stravaWorkflow(id string) *models.Workflow {
	return testutil.CreateTestWorkflow(testutil.WithID(id), testutil.WithWebhookTrigger("strava", "s3cret"))
}

func TestAPIHandlers_ReceiveWebhook(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"activity": "run", "distance": 5000}`)

	tests := []struct {
		name           string
		path           string
		payload        []byte
		headers        map[string]string
		expectedStatus int
		expectedBody   triggers.WebhookResponse
		expectedSent   int32
	}{
		{
			name:           "valid signature",
			path:           "/webhooks/strava",
			payload:        payload,
			headers:        map[string]string{"X-Signature": triggers.Sign("s3cret", payload)},
			expectedStatus: http.StatusOK,
			expectedBody:   triggers.WebhookResponse{Success: true, Message: triggers.MessageWebhookProcessed},
			expectedSent:   1,
		},
		{
			name:           "github style header",
			path:           "/webhooks/strava",
			payload:        payload,
			headers:        map[string]string{"X-Hub-Signature-256": triggers.Sign("s3cret", payload)},
			expectedStatus: http.StatusOK,
			expectedBody:   triggers.WebhookResponse{Success: true, Message: triggers.MessageWebhookProcessed},
			expectedSent:   1,
		},
		{
			name:           "wrong signature",
			path:           "/webhooks/strava",
			payload:        payload,
			headers:        map[string]string{"X-Signature": triggers.Sign("other", payload)},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   triggers.WebhookResponse{Success: false, Message: triggers.MessageInvalidSignature},
		},
		{
			name:           "unknown webhook",
			path:           "/webhooks/garmin",
			payload:        payload,
			expectedStatus: http.StatusNotFound,
			expectedBody:   triggers.WebhookResponse{Success: false, Message: triggers.MessageWebhookNotFound},
		},
		{
			name:           "malformed payload",
			path:           "/webhooks/strava",
			payload:        []byte(`{"activity":`),
			headers:        map[string]string{"X-Signature": triggers.Sign("s3cret", []byte(`{"activity":`))},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t, stravaWorkflow("strava-sync"))

			status, body := a.do(t, http.MethodPost, tt.path, tt.payload, tt.headers)
			assert.Equal(t, tt.expectedStatus, status)

			var response triggers.WebhookResponse
			require.NoError(t, json.Unmarshal(body, &response))

			if tt.expectedBody.Message != "" {
				assert.Equal(t, tt.expectedBody, response)
			} else {
				assert.False(t, response.Success)
				assert.Contains(t, response.Message, triggers.MessageInvalidPayload)
			}

			assert.Equal(t, tt.expectedSent, a.sent.Load())
		})
	}
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		body           string
		headers        map[string]string
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name:           "manual run with user",
			path:           "/workflows/checkin/run",
			body:           `{"data": {"reason": "support"}, "user": {"user_id": "u1", "email": "ada@example.com", "subscription_tier": "premium"}}`,
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				var execution models.WorkflowExecution
				require.NoError(t, json.Unmarshal(body, &execution))
				assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
				assert.Equal(t, "checkin", execution.WorkflowID)
				assert.Equal(t, scheduler.SourceManual, execution.Context.Source)
				assert.Equal(t, "support", execution.Context.EventData["reason"])
				require.NotNil(t, execution.Context.User)
				assert.Equal(t, models.SubscriptionPremium, execution.Context.User.SubscriptionTier)
			},
		},
		{
			name:           "empty body",
			path:           "/workflows/checkin/run",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "event workflow can be run manually",
			path:           "/workflows/signup/run",
			body:           `{}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unknown workflow",
			path:           "/workflows/missing/run",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid json",
			path:           "/workflows/checkin/run",
			body:           `{"data":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid user",
			path:           "/workflows/checkin/run",
			body:           `{"user": {"user_id": "u1", "subscription_tier": "gold"}}`,
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), "SubscriptionTier")
			},
		},
		{
			name:           "missing user id",
			path:           "/workflows/checkin/run",
			body:           `{"user": {"email": "ada@example.com"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "webhook run of a webhook workflow",
			path:           "/workflows/strava-sync/webhook",
			body:           `{"data": {"activity": "ride"}}`,
			headers:        map[string]string{"X-Signature": triggers.Sign("s3cret", []byte(`{"data": {"activity": "ride"}}`))},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				var execution models.WorkflowExecution
				require.NoError(t, json.Unmarshal(body, &execution))
				assert.Equal(t, "webhook:strava", execution.Context.EventType)
				assert.Equal(t, scheduler.SourceWebhook, execution.Context.Source)
			},
		},
		{
			name:           "webhook run without signature",
			path:           "/workflows/strava-sync/webhook",
			body:           `{"data": {"activity": "ride"}}`,
			expectedStatus: http.StatusUnauthorized,
			validate: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), "invalid_signature")
			},
		},
		{
			name:           "webhook run with wrong signature",
			path:           "/workflows/strava-sync/webhook",
			body:           `{"data": {"activity": "ride"}}`,
			headers:        map[string]string{"X-Signature": triggers.Sign("other", []byte(`{"data": {"activity": "ride"}}`))},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "webhook run of an unknown workflow",
			path:           "/workflows/missing/webhook",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "webhook run of a manual workflow",
			path:           "/workflows/checkin/webhook",
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t,
				manualWorkflow("checkin"),
				signupWorkflow("signup"),
				stravaWorkflow("strava-sync"),
			)

			status, body := a.do(t, http.MethodPost, tt.path, []byte(tt.body), tt.headers)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.validate != nil {
				tt.validate(t, body)
			}
		})
	}
}

func TestAPIHandlers_TriggerEvent(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t,
		signupWorkflow("signup-welcome"),
		signupWorkflow("signup-audit"),
		manualWorkflow("checkin"),
	)

	status, body := a.do(t, http.MethodPost, "/events/user_signup", []byte(`{"user": {"user_id": "u9"}}`), nil)
	require.Equal(t, http.StatusOK, status)

	var response web.ExecutionsResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, 2, response.Count)
	assert.Equal(t, int32(2), a.sent.Load())

	status, body = a.do(t, http.MethodPost, "/events/nobody_listens", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Zero(t, response.Count)
	assert.NotNil(t, response.Executions)
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t, manualWorkflow("checkin"))

	status, body := a.do(t, http.MethodPost, "/workflows/checkin/run", nil, nil)
	require.Equal(t, http.StatusCreated, status)

	var created models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &created))

	status, body = a.do(t, http.MethodGet, "/executions/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.ExecutedActions, 1)
	assert.Equal(t, models.ActionStatusCompleted, fetched.ExecutedActions[0].Status)

	status, body = a.do(t, http.MethodGet, "/executions/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "not_found")

	status, body = a.do(t, http.MethodGet, "/workflows/checkin/executions", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var list web.ExecutionsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Count)
}

func TestAPIHandlers_Workflows(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t, manualWorkflow("checkin"), signupWorkflow("signup"))

	status, body := a.do(t, http.MethodGet, "/workflows", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total_count":2`)

	status, body = a.do(t, http.MethodGet, "/workflows/signup", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, "user_signup", fetched.Trigger.EventType())

	status, _ = a.do(t, http.MethodGet, "/workflows/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = a.do(t, http.MethodGet, "/schedule", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"event_type":"user_signup"`)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "2024-03-18T09:00:00Z", health["timestamp"])
}

func TestAPIHandlers_HealthCheckUnhealthy(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := web.NewAPIHandlers(nil, nil, nil, store, registry.NewRegistry(logger), validator.New(), clockwork.NewFakeClock())

	resp, err := web.NewApp(handlers, false).Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "unhealthy", health["status"])
	assert.Contains(t, health["checkers"], "persistence")
	store.AssertExpectations(t)
}
