package main

import (
	"context"

	"github.com/dukex/operion-dust/pkg/cache"
	"github.com/dukex/operion-dust/pkg/cmd"
	"github.com/dukex/operion-dust/pkg/eventbus"
	"github.com/dukex/operion-dust/pkg/log"
	"github.com/dukex/operion-dust/pkg/nodes/dust"
	"github.com/dukex/operion-dust/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the node API over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to cache loaded options",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:  "cache-ttl",
				Usage: "Lifetime of cached options",
				Value: cache.DefaultTTL,
			},
			&cli.StringFlag{
				Name:  "plugins-path",
				Usage: "Path to the directory containing node plugins",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Operion Dust API")

			var opts []dust.FactoryOption

			opts = append(opts, dust.WithLogger(logger))

			if baseURL := command.String("base-url"); baseURL != "" {
				opts = append(opts, dust.WithBaseURL(baseURL))
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "operion-dust")
				if err != nil {
					return err
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
					}
				}()

				opts = append(opts, dust.WithTracer(tracer))
			}

			if redisURL := command.String("redis-url"); redisURL != "" {
				client, err := cache.Connect(ctx, redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := client.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()

				opts = append(opts, dust.WithOptionsCache(cache.NewRedisOptionsCache(client, command.Duration("cache-ttl"), logger)))
			}

			bus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			if bus != nil {
				defer func() {
					if err := bus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				if err := watchLocalEvents(ctx, command.String("event-bus"), bus, logger); err != nil {
					return err
				}

				opts = append(opts, dust.WithEventSink(eventbus.NewStreamEventSink(bus, command.String("workspace-id"), logger)))
			}

			registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), opts...)
			if err != nil {
				return err
			}

			api := NewAPI(logger, registry, map[string]map[string]any{
				"dustApi": credentialValues(command),
			})

			return api.Start(command.Int("port"))
		},
	}
}
