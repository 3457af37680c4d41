package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dukex/stride/pkg/cmd"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored workflows and their trigger bindings",
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			logger := slog.With("module", "stride", "action", "list")

			store, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			workflows, err := store.Workflows(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			printWorkflows(command.Root().Writer, workflows, time.Now())

			return nil
		},
	}
}

func printWorkflows(w io.Writer, workflows []*models.Workflow, now time.Time) {
	fmt.Fprintln(w, "Workflows:")
	fmt.Fprintln(w, "==========")

	enabled := 0

	for _, workflow := range workflows {
		status := "disabled"
		if workflow.Enabled {
			status = "enabled"
			enabled++
		}

		fmt.Fprintf(w, "\nWorkflow: %s (%s)\n", workflow.Name, workflow.ID)
		fmt.Fprintf(w, "Status: %s\n", status)
		fmt.Fprintf(w, "Trigger: %s\n", workflow.Trigger.Type)
		fmt.Fprintf(w, "  %s\n", binding(workflow, now))
		fmt.Fprintf(w, "Actions: %d\n", len(workflow.Actions))
	}

	fmt.Fprintf(w, "\nTotal workflows: %d (%d enabled)\n", len(workflows), enabled)
}

// binding describes what the trigger listens to.
func binding(workflow *models.Workflow, now time.Time) string {
	trigger := workflow.Trigger

	switch trigger.Type {
	case models.TriggerTypeSchedule:
		schedule, err := models.ParseCron(trigger.CronExpression())
		if err != nil {
			return "❌ " + err.Error()
		}

		loc, err := trigger.Location()
		if err != nil {
			return "❌ " + err.Error()
		}

		next := schedule.Next(now.In(loc))

		return fmt.Sprintf("Cron: %s (%s), next: %s, event: %s",
			trigger.CronExpression(), loc, next.Format(time.RFC3339), scheduler.ScheduledEventType(workflow))
	case models.TriggerTypeEvent:
		return "Event: " + trigger.EventType()
	case models.TriggerTypeWebhook:
		return fmt.Sprintf("Webhook: POST /webhooks/%s (signed: %t)", trigger.WebhookID(), trigger.WebhookSecret() != "")
	default:
		return "Manual: POST /workflows/" + workflow.ID + "/run"
	}
}
