package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/stride/pkg/cmd"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definitions from a directory or from the store",
		ArgsUsage: "[workflows dir]",
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			logger := slog.With("module", "stride", "action", "validate")
			validate := validator.New(validator.WithRequiredStructEnabled())

			store, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			records, closer, err := cmd.NewRecordWriter(cfg.RecordsURL, cfg.RecordsMaxLen, store)
			if err != nil {
				return err
			}

			if closer != nil {
				defer func() { _ = closer.Close() }()
			}

			reg := cmd.NewRegistry(logger, cmd.Handlers{Records: records, Clock: clockwork.NewRealClock()})

			var files []cmd.WorkflowFile

			dir := command.Args().First()
			if dir == "" {
				dir = cfg.WorkflowsDir
			}

			if dir != "" {
				files, err = cmd.LoadWorkflowFiles(dir)
			} else {
				files, err = storedWorkflowFiles(ctx, store)
			}

			if err != nil {
				return err
			}

			invalid := printValidation(command.Root().Writer, files, validate, reg)
			if invalid > 0 {
				return fmt.Errorf("found %d invalid workflows", invalid)
			}

			return nil
		},
	}
}

type workflowLister interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
}

func storedWorkflowFiles(ctx context.Context, store workflowLister) ([]cmd.WorkflowFile, error) {
	workflows, err := store.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflows: %w", err)
	}

	files := make([]cmd.WorkflowFile, 0, len(workflows))
	for _, workflow := range workflows {
		files = append(files, cmd.WorkflowFile{Path: "store:" + workflow.ID, Workflow: workflow})
	}

	return files, nil
}

func printValidation(w io.Writer, files []cmd.WorkflowFile, validate *validator.Validate, reg *registry.Registry) int {
	invalid := cmd.CheckWorkflowFiles(files, validate, reg)

	fmt.Fprintln(w, "Workflow Validation Results:")
	fmt.Fprintln(w, "============================")

	for _, file := range files {
		name := file.Path
		if file.Workflow != nil {
			name = fmt.Sprintf("%s (%s)", file.Workflow.Name, file.Workflow.ID)
		}

		fmt.Fprintf(w, "\nWorkflow: %s\n", name)

		if file.Err != nil {
			fmt.Fprintf(w, "    ❌ INVALID: %v\n", file.Err)
		} else {
			fmt.Fprintf(w, "    ✅ VALID\n")
		}
	}

	fmt.Fprintf(w, "\nValidation Summary:\n")
	fmt.Fprintf(w, "  Total workflows: %d\n", len(files))
	fmt.Fprintf(w, "  Valid workflows: %d\n", len(files)-invalid)
	fmt.Fprintf(w, "  Invalid workflows: %d\n", invalid)

	return invalid
}
