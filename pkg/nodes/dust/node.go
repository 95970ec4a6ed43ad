package dust

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dustapi "github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/models"
	"github.com/dukex/operion-dust/pkg/otelhelper"
	"github.com/dukex/operion-dust/pkg/template"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"

	OperationTalkToAssistant = "talkToAssistant"
	OperationUploadDocument  = "uploadDocument"
)

// DustNode runs one Dust operation for every input item.
type DustNode struct {
	id      string
	config  DustConfig
	factory *DustNodeFactory
	logger  *slog.Logger
}

// DustConfig defines the configuration for Dust nodes. String fields are
// templates resolved per item. The flag and number fields hold either a literal
// or a template rendered per item.
type DustConfig struct {
	Operation string `json:"operation"`

	Message                  string `json:"message"`
	AssistantConfigurationID string `json:"assistant_configuration_id"`
	Username                 string `json:"username"`
	Email                    string `json:"email"`
	Timezone                 string `json:"timezone"`
	StreamEvents             any    `json:"stream_events"`
	StreamTimeoutSeconds     any    `json:"stream_timeout_seconds"`

	SpaceID             string `json:"space_id"`
	DataSourceName      string `json:"data_source_name"`
	DocumentID          string `json:"document_id"`
	DocumentContent     string `json:"document_content"`
	Title               string `json:"title"`
	MimeType            string `json:"mime_type"`
	SourceURL           string `json:"source_url"`
	Tags                string `json:"tags"`
	Async               any    `json:"async"`
	LightDocumentOutput any    `json:"light_document_output"`

	ContinueOnFail bool `json:"continue_on_fail"`
}

// NewDustNode validates config against the factory schema and creates a node.
func NewDustNode(id string, config map[string]any, factory *DustNodeFactory) (*DustNode, error) {
	if factory == nil {
		factory = NewDustNodeFactory()
	}

	if config["operation"] == nil {
		config = withDefaultOperation(config)
	}

	if err := validateConfig(factory.Schema(), config); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	var dustConfig DustConfig
	if err := json.Unmarshal(raw, &dustConfig); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &DustNode{
		id:      id,
		config:  dustConfig,
		factory: factory,
		logger:  factory.logger.With("node_id", id),
	}, nil
}

func withDefaultOperation(config map[string]any) map[string]any {
	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}

	out["operation"] = OperationTalkToAssistant

	return out
}

// validateConfig validates a node configuration against its JSON schema.
func validateConfig(schema map[string]any, config map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("invalid dust config: %s", strings.Join(messages, "; "))
	}

	return nil
}

// ID returns the node ID.
func (n *DustNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *DustNode) Type() string {
	return NodeTypeID
}

// Execute runs the configured operation for each item of the main input.
func (n *DustNode) Execute(ctx context.Context, execCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, n.factory.tracer, "dust.node.execute",
		attribute.String(otelhelper.NodeIDKey, n.id),
		attribute.String(otelhelper.NodeTypeKey, NodeTypeID),
		attribute.String(otelhelper.NodeOperationKey, n.config.Operation),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID),
	)
	defer span.End()

	credentials, ok := execCtx.CredentialValues(dustapi.CredentialTypeID)
	if !ok {
		err := fmt.Errorf("missing credentials %q", dustapi.CredentialTypeID)
		otelhelper.SetError(span, err)

		return n.createErrorResult(err.Error(), -1), nil
	}

	client, err := n.factory.newClient(credentials)
	if err != nil {
		otelhelper.SetError(span, err)

		return n.createErrorResult(err.Error(), -1), nil
	}

	items := []map[string]any{{}}
	if input, ok := inputs[InputPortMain]; ok {
		items = models.ItemsFromResult(input)
	}

	output := make([]models.Item, 0, len(items))

	for i, item := range items {
		data, err := n.executeItem(ctx, client, &execCtx, item)
		if err != nil {
			n.logger.WarnContext(ctx, "Dust item failed",
				"operation", n.config.Operation,
				"item_index", i,
				"error", err,
			)

			if !n.config.ContinueOnFail {
				otelhelper.SetError(span, err, attribute.Int(otelhelper.ItemIndexKey, i))

				return n.createErrorResult(err.Error(), i), nil
			}

			output = append(output, models.Item{
				JSON:       map[string]any{"error": err.Error()},
				PairedItem: i,
			})

			continue
		}

		output = append(output, models.Item{JSON: data, PairedItem: i})
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID:    n.id,
			Data:      models.ItemsData(output),
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func (n *DustNode) executeItem(ctx context.Context, client *dustapi.Client, execCtx *models.ExecutionContext, item map[string]any) (map[string]any, error) {
	r := &resolver{execCtx: execCtx, item: item}

	switch n.config.Operation {
	case OperationTalkToAssistant:
		return n.talk(ctx, client, r)
	case OperationUploadDocument:
		return n.upload(ctx, client, r)
	default:
		return nil, fmt.Errorf("unsupported operation %q", n.config.Operation)
	}
}

func (n *DustNode) talk(ctx context.Context, client *dustapi.Client, r *resolver) (map[string]any, error) {
	req := dustapi.TalkRequest{
		MessageInput: dustapi.MessageInput{
			AgentID:  r.resolve("assistant_configuration_id", n.config.AssistantConfigurationID),
			Content:  r.resolve("message", n.config.Message),
			Username: r.resolve("username", n.config.Username),
			Email:    r.resolve("email", n.config.Email),
			Timezone: r.resolve("timezone", n.config.Timezone),
		},
		Stream: r.resolveBool("stream_events", n.config.StreamEvents),
		Sink:   n.factory.sink,
	}

	if seconds, ok := r.resolveNumber("stream_timeout_seconds", n.config.StreamTimeoutSeconds); ok {
		if seconds < 1 && r.err == nil {
			r.err = fmt.Errorf("stream_timeout_seconds must be at least 1, got %v", seconds)
		}

		req.StreamTimeout = time.Duration(seconds * float64(time.Second))
	}

	if r.err != nil {
		return nil, r.err
	}

	result, err := client.Talk(ctx, req)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"agentMessage":    result.AgentMessage,
		"conversationUrl": result.ConversationURL,
		"userMessage":     decodeRaw(result.UserMessage),
	}

	if req.Stream {
		events := make([]any, 0, len(result.Events))
		for _, payload := range dustapi.Payloads(result.Events) {
			events = append(events, decodeRaw(payload))
		}

		out["events"] = events
	}

	return out, nil
}

func (n *DustNode) upload(ctx context.Context, client *dustapi.Client, r *resolver) (map[string]any, error) {
	doc := dustapi.DocumentUpsert{
		SpaceID:             r.resolve("space_id", n.config.SpaceID),
		DataSourceName:      r.resolve("data_source_name", n.config.DataSourceName),
		DocumentID:          r.resolve("document_id", n.config.DocumentID),
		Text:                r.resolve("document_content", n.config.DocumentContent),
		Title:               r.resolve("title", n.config.Title),
		MimeType:            r.resolve("mime_type", n.config.MimeType),
		SourceURL:           r.resolve("source_url", n.config.SourceURL),
		Tags:                dustapi.ParseTags(r.resolve("tags", n.config.Tags)),
		Async:               r.resolveOptionalBool("async", n.config.Async),
		LightDocumentOutput: r.resolveOptionalBool("light_document_output", n.config.LightDocumentOutput),
	}

	if r.err != nil {
		return nil, r.err
	}

	return client.UpsertDocument(ctx, doc)
}

// resolver renders parameters for one item and keeps the first error.
type resolver struct {
	execCtx *models.ExecutionContext
	item    map[string]any
	err     error
}

func (r *resolver) resolve(name, value string) string {
	if r.err != nil {
		return ""
	}

	out, err := template.RenderString(value, r.execCtx, r.item)
	if err != nil {
		r.err = fmt.Errorf("failed to render %s: %w", name, err)

		return ""
	}

	return out
}

// resolveValue renders a literal-or-template field. ok is false when the field
// is unset or renders to nothing.
func (r *resolver) resolveValue(name string, value any) (any, bool) {
	if r.err != nil || value == nil {
		return nil, false
	}

	text, isText := value.(string)
	if !isText {
		return value, true
	}

	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	out, err := template.RenderWithContext(text, r.execCtx, r.item)
	if err != nil {
		r.err = fmt.Errorf("failed to render %s: %w", name, err)

		return nil, false
	}

	if s, isString := out.(string); isString && (s == "" || s == template.NoValue) {
		return nil, false
	}

	return out, true
}

func (r *resolver) resolveOptionalBool(name string, value any) *bool {
	out, ok := r.resolveValue(name, value)
	if !ok {
		return nil
	}

	b, isBool := out.(bool)
	if !isBool {
		r.err = fmt.Errorf("%s must be a boolean, got %v", name, out)

		return nil
	}

	return &b
}

func (r *resolver) resolveBool(name string, value any) bool {
	b := r.resolveOptionalBool(name, value)

	return b != nil && *b
}

func (r *resolver) resolveNumber(name string, value any) (float64, bool) {
	out, ok := r.resolveValue(name, value)
	if !ok {
		return 0, false
	}

	n, isNumber := out.(float64)
	if !isNumber {
		r.err = fmt.Errorf("%s must be a number, got %v", name, out)

		return 0, false
	}

	return n, true
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	return v
}

// createErrorResult creates a NodeResult for the error output port. itemIndex
// is negative for failures that happen before any item is processed.
func (n *DustNode) createErrorResult(errorMessage string, itemIndex int) map[string]models.NodeResult {
	data := map[string]any{
		"error":   errorMessage,
		"success": false,
	}

	if itemIndex >= 0 {
		data["item_index"] = itemIndex
	}

	return map[string]models.NodeResult{
		OutputPortError: {
			NodeID:    n.id,
			Data:      data,
			Status:    string(models.NodeStatusError),
			Error:     errorMessage,
			Timestamp: time.Now().UTC(),
		},
	}
}

// InputPorts returns the input ports for the node.
func (n *DustNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Items to process, one Dust call per item",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *DustNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "One output item per input item",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						models.ItemsKey: map[string]any{"type": "array"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when an item fails",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error":      map[string]any{"type": "string"},
						"item_index": map[string]any{"type": "number"},
						"success":    map[string]any{"type": "boolean"},
					},
				},
			},
		},
	}
}

// InputRequirements returns the input coordination requirements for the Dust node.
func (n *DustNode) InputRequirements() models.InputRequirements {
	return models.DefaultInputRequirements()
}

// Validate validates the node configuration.
func (n *DustNode) Validate(config map[string]any) error {
	if config["operation"] == nil {
		config = withDefaultOperation(config)
	}

	return validateConfig(n.factory.Schema(), config)
}
