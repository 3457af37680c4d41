package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp mounts the API routes on a new fiber application.
func NewApp(handlers *APIHandlers, requestLogging bool) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())

	if requestLogging {
		app.Use(logger.New(logger.Config{
			DisableColors: true,
		}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stride API")
	})

	app.Post("/webhooks/:id", handlers.ReceiveWebhook)
	app.Post("/events/:type", handlers.TriggerEvent)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Post("/:id/webhook", handlers.RunWebhookWorkflow)
	w.Get("/:id/executions", handlers.ListWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/schedule", handlers.GetSchedule)
	app.Get("/health", handlers.HealthCheck)

	return app
}
