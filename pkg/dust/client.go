// Package dust provides a client for the Dust.tt conversational agent and
// document ingestion API.
package dust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/operion-dust/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dukex/operion-dust/pkg/dust"

// Client talks to one Dust workspace.
type Client struct {
	baseURL     string
	workspaceID string
	apiKey      string
	httpClient  *http.Client
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every call. The client must not
// carry a global timeout if event streaming is used; stream lifetimes are bounded
// by the context instead.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL overrides the region derived API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTracer sets the tracer used for API spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewClient creates a client for the workspace described by creds.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:     creds.BaseURL(),
		workspaceID: creds.WorkspaceID,
		apiKey:      creds.APIKey,
		httpClient:  &http.Client{},
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "dust_client", "workspace_id", c.workspaceID)

	return c, nil
}

// BaseURL returns the API host this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WorkspaceID returns the workspace this client is bound to.
func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

func (c *Client) apiURL(segments ...string) string {
	var b strings.Builder

	b.WriteString(c.baseURL)
	b.WriteString("/api/v1/w/")
	b.WriteString(url.PathEscape(c.workspaceID))

	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(s)
	}

	return b.String()
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// doJSON performs one authenticated JSON call and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, op, method, rawURL string, body, out any) (err error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "dust."+op,
		attribute.String(otelhelper.DustWorkspaceIDKey, c.workspaceID),
		attribute.String("http.request.method", method),
	)
	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	req, err := c.newRequest(ctx, method, rawURL, body)
	if err != nil {
		return err
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	c.logger.DebugContext(ctx, "Dust API call",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	return nil
}
