// Package web provides HTTP handlers exposing node metadata, option loading and execution.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/operion-dust/pkg/models"
	"github.com/dukex/operion-dust/pkg/nodes/dust"
	"github.com/dukex/operion-dust/pkg/protocol"
	"github.com/dukex/operion-dust/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type APIHandlers struct {
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
	credentials map[string]map[string]any
}

// NewAPIHandlers creates the handlers. credentials are the server side values
// of each credential type, used when a request brings none.
func NewAPIHandlers(
	registry *registry.Registry,
	validator *validator.Validate,
	logger *slog.Logger,
	credentials map[string]map[string]any,
) *APIHandlers {
	if credentials == nil {
		credentials = map[string]map[string]any{}
	}

	return &APIHandlers{
		registry:    registry,
		validator:   validator,
		logger:      logger.With("module", "web"),
		credentials: credentials,
	}
}

func (h *APIHandlers) GetNodes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	nodes := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		nodes = append(nodes, TransformNodeType(factory))
	}

	return c.JSON(fiber.Map{
		"nodes": nodes,
	})
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	factory, ok := h.registry.NodeFactory(c.Params("id"))
	if !ok {
		return notFound(c, "Node type not found")
	}

	return c.JSON(TransformNodeType(factory))
}

func (h *APIHandlers) GetCredentialType(c fiber.Ctx) error {
	credentialType, ok := h.registry.CredentialType(c.Params("id"))
	if !ok {
		return notFound(c, "Credential type not found")
	}

	return c.JSON(CredentialTypeResponse{
		ID:               credentialType.ID(),
		Name:             credentialType.Name(),
		DocumentationURL: credentialType.DocumentationURL(),
		Schema:           credentialType.Schema(),
	})
}

// TestCredentialType checks the server side credentials of a type.
func (h *APIHandlers) TestCredentialType(c fiber.Ctx) error {
	credentialType, ok := h.registry.CredentialType(c.Params("id"))
	if !ok {
		return notFound(c, "Credential type not found")
	}

	if err := credentialType.Test(c.Context(), h.credentials[credentialType.ID()]); err != nil {
		return handleDustError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Connection tested successfully",
	})
}

func (h *APIHandlers) LoadNodeOptions(c fiber.Ctx) error {
	factory, ok := h.registry.NodeFactory(c.Params("id"))
	if !ok {
		return notFound(c, "Node type not found")
	}

	loader, ok := factory.(protocol.OptionsLoader)
	if !ok {
		return notFound(c, "Node type has no options")
	}

	options, err := loader.LoadOptions(c.Context(), c.Params("method"), h.credentialsFor(factory, nil))
	if err != nil {
		if errors.Is(err, dust.ErrUnknownOptionsMethod) {
			return notFound(c, err.Error())
		}

		return handleDustError(c, err)
	}

	return c.JSON(fiber.Map{
		"options": options,
	})
}

func (h *APIHandlers) ExecuteNode(c fiber.Ctx) error {
	nodeType := c.Params("id")

	if _, ok := h.registry.NodeFactory(nodeType); !ok {
		return notFound(c, "Node type not found")
	}

	var req ExecuteNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID := uuid.New().String()

	node, err := h.registry.CreateNode(c.Context(), nodeType, nodeType+"-"+executionID[:8], req.Config)
	if err != nil {
		return badRequest(c, err.Error())
	}

	factory, _ := h.registry.NodeFactory(nodeType)

	execCtx := models.ExecutionContext{
		ID:          executionID,
		Variables:   req.Variables,
		Metadata:    map[string]any{"source": "web"},
		Credentials: h.credentialsByType(factory, req.Credentials),
	}

	inputs := map[string]models.NodeResult{}
	if len(req.Items) > 0 {
		inputs["main"] = models.NodeResult{
			Data:      map[string]any{models.ItemsKey: req.Items},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		}
	}

	start := time.Now()

	results, err := node.Execute(c.Context(), execCtx, inputs)
	if err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Executed node",
		"node_type", nodeType,
		"execution_id", executionID,
		"items", len(req.Items),
		"duration", time.Since(start),
	)

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"execution_id": executionID,
		"results":      results,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	nodes := len(h.registry.GetAvailableNodes())

	status := "unhealthy"
	message := "Operion Dust API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if nodes > 0 {
		status = "healthy"
		message = "Operion Dust API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry": fiber.Map{"nodes": nodes},
		},
		"timestamp": time.Now().UTC(),
	})
}

// credentialsFor returns the values of the first credential type the factory
// requires, preferring override.
func (h *APIHandlers) credentialsFor(factory protocol.NodeFactory, override map[string]map[string]any) map[string]any {
	requirer, ok := factory.(protocol.CredentialRequirer)
	if !ok || len(requirer.Credentials()) == 0 {
		return nil
	}

	id := requirer.Credentials()[0]
	if values, ok := override[id]; ok {
		return values
	}

	return h.credentials[id]
}

func (h *APIHandlers) credentialsByType(factory protocol.NodeFactory, override map[string]map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}

	requirer, ok := factory.(protocol.CredentialRequirer)
	if !ok {
		return out
	}

	for _, id := range requirer.Credentials() {
		if values, ok := override[id]; ok {
			out[id] = values
		} else if values, ok := h.credentials[id]; ok {
			out[id] = values
		}
	}

	return out
}
