package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts the node and credential endpoints on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	n := router.Group("/nodes")
	n.Get("/", h.GetNodes)
	n.Get("/:id", h.GetNode)
	n.Get("/:id/options/:method", h.LoadNodeOptions)
	n.Post("/:id/execute", h.ExecuteNode)

	c := router.Group("/credentials")
	c.Get("/:id", h.GetCredentialType)
	c.Post("/:id/test", h.TestCredentialType)

	router.Get("/health", h.HealthCheck)
}
