package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/stride/pkg/config"
	"github.com/dukex/stride/pkg/log"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
)

// loadConfig reads the config file and applies the flags given on the command line.
func loadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("database-url") {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("workflows-dir") {
		cfg.WorkflowsDir = command.String("workflows-dir")
	}

	if command.IsSet("log-level") {
		cfg.LogLevel = command.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "database-url",
		Usage: "Workflow and user store URL (file://<dir> or postgres://...)",
	}
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the scheduler, trigger manager and HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
			},
			databaseFlag(),
			&cli.StringFlag{
				Name:  "workflows-dir",
				Usage: "Directory of workflow JSON files imported at startup",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel, cfg.LogFormat)

			logger := log.WithModule("stride")

			logger.InfoContext(ctx, "Initializing Stride", "port", cfg.Port, "event_bus", cfg.EventBus)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, clockwork.NewRealClock(), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := app.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close", "error", err)
				}
			}()

			if err := app.Start(ctx); err != nil {
				return err
			}

			return app.Serve(ctx)
		},
	}
}
