package web

import (
	"net/http"
	"time"

	"github.com/dukex/stride/pkg/engine"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/dukex/stride/pkg/registry"
	"github.com/dukex/stride/pkg/scheduler"
	"github.com/dukex/stride/pkg/triggers"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
)

type APIHandlers struct {
	engine      *engine.Engine
	scheduler   *scheduler.Scheduler
	triggers    *triggers.Manager
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	clock       clockwork.Clock
}

func NewAPIHandlers(
	engine *engine.Engine,
	scheduler *scheduler.Scheduler,
	triggers *triggers.Manager,
	persistence persistence.Persistence,
	registry *registry.Registry,
	validator *validator.Validate,
	clock clockwork.Clock,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		scheduler:   scheduler,
		triggers:    triggers,
		persistence: persistence,
		registry:    registry,
		validator:   validator,
		clock:       clock,
	}
}

// ReceiveWebhook hands the raw body and headers to the trigger manager. The
// response body is always the manager's {success, message} answer.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	id := c.Params("id")

	response := h.triggers.HandleWebhook(c.Context(), id, requestHeaders(c), c.Body())

	return c.Status(webhookStatus(response)).JSON(response)
}

func requestHeaders(c fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	return headers
}

func webhookStatus(response triggers.WebhookResponse) int {
	if response.Success {
		return fiber.StatusOK
	}

	switch {
	case response.Message == triggers.MessageWebhookNotFound:
		return fiber.StatusNotFound
	case response.Message == triggers.MessageInvalidSignature:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusBadRequest
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(workflow)
}

// RunWorkflow triggers a stored workflow manually, whatever its trigger type.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	req, err := h.bindRunRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.scheduler.RunWorkflow(c.Context(), id, req.Data, req.User.UserContext())
	if err != nil {
		return handleRunError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

// RunWebhookWorkflow runs a webhook workflow directly. When the trigger has a
// secret the raw body must carry a valid signature, as on /webhooks/:id.
func (h *APIHandlers) RunWebhookWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleRunError(c, err)
	}

	if workflow.Trigger.Type == models.TriggerTypeWebhook &&
		!h.triggers.VerifyRequest(workflow.Trigger.WebhookSecret(), requestHeaders(c), c.Body()) {
		return unauthorized(c, triggers.MessageInvalidSignature)
	}

	req, err := h.bindRunRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.scheduler.RunWebhookWorkflow(c.Context(), id, req.Data, req.User.UserContext())
	if err != nil {
		return handleRunError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

// TriggerEvent runs every workflow subscribed to the event type in the path.
func (h *APIHandlers) TriggerEvent(c fiber.Ctx) error {
	eventType := c.Params("type")
	if eventType == "" {
		return badRequest(c, "Event type is required")
	}

	req, err := h.bindRunRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	executions := h.scheduler.TriggerEvent(c.Context(), eventType, req.Data, req.User.UserContext())

	return c.JSON(newExecutionsResponse(executions))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, ok := h.engine.GetExecution(id)
	if !ok {
		return notFound(c, "Execution not found")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	return c.JSON(newExecutionsResponse(h.engine.ListExecutions(id)))
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	entries := h.scheduler.Entries()

	schedule := make([]fiber.Map, 0, len(entries))

	for _, entry := range entries {
		item := fiber.Map{
			"workflow_id": entry.WorkflowID,
			"trigger":     entry.Trigger,
		}

		if entry.EventType != "" {
			item["event_type"] = entry.EventType
		}

		if !entry.Next.IsZero() {
			item["next"] = entry.Next
		}

		schedule = append(schedule, item)
	}

	return c.JSON(fiber.Map{"entries": schedule})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	actionTypes := h.registry.Types()
	registryOk := len(actionTypes) > 0

	registryCheck := fiber.Map{"status": "ok", "action_types": actionTypes}
	if !registryOk {
		registryCheck["status"] = "no action handlers registered"
	}

	persistenceOk := true
	persistenceCheck := fiber.Map{"status": "ok"}

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		persistenceOk = false
		persistenceCheck["status"] = err.Error()
	}

	status := "unhealthy"
	message := "Stride API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if registryOk && persistenceOk {
		status = "healthy"
		message = "Stride API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":    registryCheck,
			"persistence": persistenceCheck,
		},
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *APIHandlers) bindRunRequest(c fiber.Ctx) (*RunRequest, error) {
	req := &RunRequest{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return nil, errInvalidJSON
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return req, nil
}
