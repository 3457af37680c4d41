// Package main provides the stride command: the workflow engine server and
// its workflow tooling.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "stride",
		Usage:                 "Run and inspect user engagement workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (defaults to ./stride.yaml when present)",
				Sources: cli.EnvVars("STRIDE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewListCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
