// Package dust provides the Dust node factory for the registry system.
package dust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/operion-dust/pkg/cache"
	dustapi "github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/models"
	"github.com/dukex/operion-dust/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	NodeTypeID = "dust"

	// LoadOptionsGetAgents lists the workspace agents for the agent selector.
	LoadOptionsGetAgents = "getAgents"

	tracerName = "github.com/dukex/operion-dust/pkg/nodes/dust"
)

var ErrUnknownOptionsMethod = errors.New("unknown options method")

// DustNodeFactory creates DustNode instances.
type DustNodeFactory struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	tracer     trace.Tracer
	cache      cache.OptionsCache
	sink       dustapi.EventSink
}

// FactoryOption configures a DustNodeFactory.
type FactoryOption func(*DustNodeFactory)

// WithHTTPClient sets the HTTP client handed to every Dust client.
func WithHTTPClient(httpClient *http.Client) FactoryOption {
	return func(f *DustNodeFactory) {
		f.httpClient = httpClient
	}
}

// WithBaseURL overrides the region derived Dust host.
func WithBaseURL(baseURL string) FactoryOption {
	return func(f *DustNodeFactory) {
		f.baseURL = baseURL
	}
}

// WithLogger sets the logger of the factory and its nodes.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *DustNodeFactory) {
		f.logger = logger
	}
}

// WithTracer sets the tracer used for node and API spans.
func WithTracer(tracer trace.Tracer) FactoryOption {
	return func(f *DustNodeFactory) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// WithOptionsCache memoises loaded option lists.
func WithOptionsCache(c cache.OptionsCache) FactoryOption {
	return func(f *DustNodeFactory) {
		f.cache = c
	}
}

// WithEventSink forwards streamed conversation events.
func WithEventSink(sink dustapi.EventSink) FactoryOption {
	return func(f *DustNodeFactory) {
		f.sink = sink
	}
}

// NewDustNodeFactory creates a new Dust node factory.
func NewDustNodeFactory(opts ...FactoryOption) *DustNodeFactory {
	f := &DustNodeFactory{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.logger = f.logger.With("module", "dust_node")

	return f
}

// Create creates a new DustNode instance.
func (f *DustNodeFactory) Create(ctx context.Context, id string, config map[string]any) (models.Node, error) {
	return NewDustNode(id, config, f)
}

// ID returns the factory ID.
func (f *DustNodeFactory) ID() string {
	return NodeTypeID
}

// Name returns the factory name.
func (f *DustNodeFactory) Name() string {
	return "Dust"
}

// Description returns the factory description.
func (f *DustNodeFactory) Description() string {
	return "Interact with Dust API"
}

// Credentials returns the credential types the node needs.
func (f *DustNodeFactory) Credentials() []string {
	return []string{dustapi.CredentialTypeID}
}

// LoadOptions populates a dynamic selection list.
func (f *DustNodeFactory) LoadOptions(ctx context.Context, method string, credentials map[string]any) ([]models.NodeOption, error) {
	if method != LoadOptionsGetAgents {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOptionsMethod, method)
	}

	client, err := f.newClient(credentials)
	if err != nil {
		return nil, err
	}

	key := cache.Key(method, client.WorkspaceID())

	if f.cache != nil {
		options, ok, err := f.cache.Get(ctx, key)
		if err != nil {
			f.logger.WarnContext(ctx, "Options cache unavailable", "error", err)
		} else if ok {
			return options, nil
		}
	}

	agents, err := client.AgentOptions(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]models.NodeOption, 0, len(agents))
	for _, a := range agents {
		options = append(options, models.NodeOption{Name: a.Name, Value: a.Value})
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, key, options); err != nil {
			f.logger.WarnContext(ctx, "Failed to cache options", "error", err)
		}
	}

	return options, nil
}

func (f *DustNodeFactory) newClient(credentials map[string]any) (*dustapi.Client, error) {
	opts := []dustapi.Option{
		dustapi.WithLogger(f.logger),
		dustapi.WithTracer(f.tracer),
	}

	if f.httpClient != nil {
		opts = append(opts, dustapi.WithHTTPClient(f.httpClient))
	}

	if f.baseURL != "" {
		opts = append(opts, dustapi.WithBaseURL(f.baseURL))
	}

	return dustapi.NewClient(dustapi.CredentialsFromMap(credentials), opts...)
}

// Schema returns the JSON schema for Dust node configuration.
func (f *DustNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"description": "Operation to perform",
				"enum":        []string{OperationTalkToAssistant, OperationUploadDocument},
				"default":     OperationTalkToAssistant,
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message to send to the agent. Supports templating with {{.json.field}}",
				"examples":    []string{"Summarize {{.json.title}}"},
			},
			"assistant_configuration_id": map[string]any{
				"type":           "string",
				"description":    "Agent ID, chosen from the getAgents options or given as an expression",
				"x-load-options": LoadOptionsGetAgents,
			},
			"username": map[string]any{
				"type":        "string",
				"description": "Username shown as the message author",
				"default":     dustapi.DefaultUsername,
			},
			"email": map[string]any{
				"type":        "string",
				"description": "Email of the message author",
				"default":     dustapi.DefaultEmail,
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "Timezone of the message author",
				"default":     dustapi.DefaultTimezone,
			},
			"stream_events": map[string]any{
				"type":        []string{"boolean", "string"},
				"description": "Listen to conversation events via SSE until completion and include them in the output. Accepts an expression",
				"default":     false,
			},
			"stream_timeout_seconds": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Maximum time to wait for the conversation to complete when streaming events. Accepts an expression",
				"default":     dustapi.DefaultStreamTimeout.Seconds(),
				"minimum":     1,
			},
			"space_id": map[string]any{
				"type":        "string",
				"description": "ID of the space holding the data source",
			},
			"data_source_name": map[string]any{
				"type":        "string",
				"description": "Name of the data source",
			},
			"document_id": map[string]any{
				"type":        "string",
				"description": "ID of the document to create or replace",
			},
			"document_content": map[string]any{
				"type":        "string",
				"description": "Text content of the document",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Document title",
			},
			"mime_type": map[string]any{
				"type":        "string",
				"description": "MIME type of the document",
				"examples":    []string{"text/plain", "text/markdown"},
			},
			"source_url": map[string]any{
				"type":        "string",
				"description": "URL of the document source",
			},
			"tags": map[string]any{
				"type":        "string",
				"description": "Comma separated list of tags",
				"examples":    []string{"report, q3, finance"},
			},
			"async": map[string]any{
				"type":        []string{"boolean", "string"},
				"description": "Process the upload asynchronously. Accepts an expression",
			},
			"light_document_output": map[string]any{
				"type":        []string{"boolean", "string"},
				"description": "Return a light version of the document in the response. Accepts an expression",
			},
			"continue_on_fail": map[string]any{
				"type":        "boolean",
				"description": "Emit an error item and keep processing when an item fails",
				"default":     false,
			},
		},
		"required": []string{"operation"},
		"allOf": []map[string]any{
			{
				"if": map[string]any{
					"properties": map[string]any{"operation": map[string]any{"const": OperationTalkToAssistant}},
				},
				"then": map[string]any{
					"required": []string{"message", "assistant_configuration_id"},
				},
			},
			{
				"if": map[string]any{
					"properties": map[string]any{"operation": map[string]any{"const": OperationUploadDocument}},
				},
				"then": map[string]any{
					"required": []string{"space_id", "data_source_name", "document_id", "document_content"},
				},
			},
		},
		"examples": []map[string]any{
			{
				"operation":                  OperationTalkToAssistant,
				"message":                    "{{.json.question}}",
				"assistant_configuration_id": "gpt-4",
				"stream_events":              true,
			},
			{
				"operation":        OperationUploadDocument,
				"space_id":         "vlt_123",
				"data_source_name": "docs",
				"document_id":      "{{.json.id}}",
				"document_content": "{{.json.body}}",
				"tags":             "imported, workflow",
			},
		},
	}
}

// credentialType is the dustApi credential declaration.
type credentialType struct {
	factory *DustNodeFactory
}

// CredentialType returns the declaration of the dustApi credential, tested
// with the factory's HTTP settings.
func (f *DustNodeFactory) CredentialType() protocol.CredentialType {
	return &credentialType{factory: f}
}

func (c *credentialType) ID() string {
	return dustapi.CredentialTypeID
}

func (c *credentialType) Name() string {
	return "Dust API"
}

func (c *credentialType) DocumentationURL() string {
	return "https://dust.tt/docs"
}

func (c *credentialType) Schema() map[string]any {
	return dustapi.CredentialSchema()
}

func (c *credentialType) Test(ctx context.Context, values map[string]any) error {
	client, err := c.factory.newClient(values)
	if err != nil {
		return err
	}

	return client.TestCredentials(ctx)
}
