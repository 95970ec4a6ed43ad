package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/operion-dust/pkg/cmd"
	"github.com/dukex/operion-dust/pkg/eventbus"
	"github.com/dukex/operion-dust/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// watchLocalEvents logs the events of an in-process bus, which no other
// process can consume.
func watchLocalEvents(ctx context.Context, provider string, bus *eventbus.WatermillEventBus, logger *slog.Logger) error {
	if provider != cmd.EventBusGoChannel {
		return nil
	}

	return eventbus.Watch(ctx, bus, eventbus.NewStreamEventLogger(logger))
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect republished stream events",
		Commands: []*cli.Command{
			{
				Name:  "tail",
				Usage: "Print stream events published on the event bus as JSON lines",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "Only print events of this conversation",
					},
					&cli.StringFlag{
						Name:  "group",
						Usage: "Consumer group suffix",
						Value: "operion-dust-tail",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					logger := log.WithModule("events")

					bus, err := cmd.NewEventSubscriber(command.String("event-bus"), command.String("group"), logger)
					if err != nil {
						return err
					}

					defer func() {
						if err := bus.Close(); err != nil {
							logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
						}
					}()

					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()

					printer := eventbus.NewStreamEventPrinter(command.Root().Writer, command.String("conversation"))
					if err := eventbus.Watch(ctx, bus, printer); err != nil {
						return err
					}

					logger.InfoContext(ctx, "Tailing stream events", "group", command.String("group"))

					<-ctx.Done()

					return nil
				},
			},
		},
	}
}
