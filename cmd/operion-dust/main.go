// Package main provides the operion-dust command line client and node API server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/operion-dust/pkg/cmd"
	"github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "operion-dust",
		Usage:                 "Talk to Dust agents and upload documents to Dust data sources",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Dust API key",
				Sources: cli.EnvVars("DUST_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "workspace-id",
				Usage:   "Dust workspace ID",
				Sources: cli.EnvVars("DUST_WORKSPACE_ID"),
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "Dust region (EU, US)",
				Value:   dust.RegionUS,
				Sources: cli.EnvVars("DUST_REGION"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Override the Dust API host",
				Sources: cli.EnvVars("DUST_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Provider republishing stream events (none, gochannel, kafka)",
				Value:   cmd.EventBusNone,
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.SetupWriter(os.Stderr, command.String("log-level"), "text")

			return ctx, nil
		},
		Commands: []*cli.Command{
			talkCommand(),
			uploadCommand(),
			agentsCommand(),
			credentialsCommand(),
			serveCommand(),
			eventsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
