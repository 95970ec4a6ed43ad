package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/operion-dust/pkg/cmd"
	"github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/eventbus"
	"github.com/dukex/operion-dust/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var errMissingText = errors.New("one of --text or --file is required")

// credentialValues returns the global credential flags as resolved credential properties.
func credentialValues(command *cli.Command) map[string]any {
	return map[string]any{
		"apiKey":      command.String("api-key"),
		"workspaceId": command.String("workspace-id"),
		"region":      command.String("region"),
	}
}

func newClient(command *cli.Command, logger *slog.Logger) (*dust.Client, error) {
	opts := []dust.Option{dust.WithLogger(logger)}

	if baseURL := command.String("base-url"); baseURL != "" {
		opts = append(opts, dust.WithBaseURL(baseURL))
	}

	return dust.NewClient(dust.CredentialsFromMap(credentialValues(command)), opts...)
}

func writeJSON(command *cli.Command, v any) error {
	var w io.Writer = os.Stdout
	if root := command.Root(); root != nil && root.Writer != nil {
		w = root.Writer
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func talkCommand() *cli.Command {
	return &cli.Command{
		Name:  "talk",
		Usage: "Send a message to an agent and print its reply",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Usage: "Agent configuration ID", Required: true},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message content", Required: true},
			&cli.BoolFlag{Name: "stream", Usage: "Follow the conversation event stream"},
			&cli.DurationFlag{Name: "timeout", Usage: "Maximum duration of the streaming phase", Value: dust.DefaultStreamTimeout},
			&cli.DurationFlag{Name: "reconnect-delay", Usage: "Delay between event stream segments"},
			&cli.StringFlag{Name: "username", Usage: "Username sent in the message context", Value: dust.DefaultUsername},
			&cli.StringFlag{Name: "email", Usage: "Email sent in the message context", Value: dust.DefaultEmail},
			&cli.StringFlag{Name: "timezone", Usage: "Timezone sent in the message context", Value: dust.DefaultTimezone},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("talk")

			client, err := newClient(command, logger)
			if err != nil {
				return err
			}

			req := dust.TalkRequest{
				MessageInput: dust.MessageInput{
					AgentID:  command.String("agent"),
					Content:  command.String("message"),
					Username: command.String("username"),
					Email:    command.String("email"),
					Timezone: command.String("timezone"),
				},
				Stream:         command.Bool("stream"),
				StreamTimeout:  command.Duration("timeout"),
				ReconnectDelay: command.Duration("reconnect-delay"),
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

				req.Sink = eventbus.NewStreamEventSink(bus, client.WorkspaceID(), logger)
			}

			result, err := client.Talk(ctx, req)
			if err != nil {
				return err
			}

			out := map[string]any{
				"agentMessage":    result.AgentMessage,
				"conversationUrl": result.ConversationURL,
				"conversationId":  result.ConversationID,
				"userMessage":     result.UserMessage,
			}

			if req.Stream {
				out["events"] = dust.Payloads(result.Events)
			}

			return writeJSON(command, out)
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload a text document to a data source",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "space", Usage: "Space ID", Required: true},
			&cli.StringFlag{Name: "data-source", Usage: "Data source name", Required: true},
			&cli.StringFlag{Name: "document-id", Usage: "Document ID", Required: true},
			&cli.StringFlag{Name: "text", Usage: "Document content"},
			&cli.StringFlag{Name: "file", Usage: "Read the document content from a file"},
			&cli.StringFlag{Name: "tags", Usage: "Comma separated tags"},
			&cli.StringFlag{Name: "title", Usage: "Document title"},
			&cli.StringFlag{Name: "mime-type", Usage: "Document MIME type"},
			&cli.StringFlag{Name: "source-url", Usage: "Document source URL"},
			&cli.BoolFlag{Name: "async", Usage: "Process the upload asynchronously"},
			&cli.BoolFlag{Name: "light", Usage: "Return a light document output"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			client, err := newClient(command, log.WithModule("upload"))
			if err != nil {
				return err
			}

			text := command.String("text")

			if path := command.String("file"); path != "" {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read document file: %w", err)
				}

				text = string(content)
			}

			if text == "" {
				return errMissingText
			}

			doc := dust.DocumentUpsert{
				SpaceID:        command.String("space"),
				DataSourceName: command.String("data-source"),
				DocumentID:     command.String("document-id"),
				Text:           text,
				Title:          command.String("title"),
				MimeType:       command.String("mime-type"),
				SourceURL:      command.String("source-url"),
				Tags:           dust.ParseTags(command.String("tags")),
			}

			if command.IsSet("async") {
				async := command.Bool("async")
				doc.Async = &async
			}

			if command.IsSet("light") {
				light := command.Bool("light")
				doc.LightDocumentOutput = &light
			}

			resp, err := client.UpsertDocument(ctx, doc)
			if err != nil {
				return err
			}

			return writeJSON(command, resp)
		},
	}
}

func agentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "List the agents of the workspace",
		Action: func(ctx context.Context, command *cli.Command) error {
			client, err := newClient(command, log.WithModule("agents"))
			if err != nil {
				return err
			}

			agents, err := client.ListAgents(ctx)
			if err != nil {
				return err
			}

			return writeJSON(command, agents)
		},
	}
}

func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage Dust credentials",
		Commands: []*cli.Command{
			{
				Name:  "test",
				Usage: "Check the API key against the workspace",
				Action: func(ctx context.Context, command *cli.Command) error {
					client, err := newClient(command, log.WithModule("credentials"))
					if err != nil {
						return err
					}

					start := time.Now()

					if err := client.TestCredentials(ctx); err != nil {
						return err
					}

					return writeJSON(command, map[string]any{
						"status":       "ok",
						"workspaceId":  client.WorkspaceID(),
						"baseUrl":      client.BaseURL(),
						"responseTime": time.Since(start).String(),
					})
				},
			},
		},
	}
}
