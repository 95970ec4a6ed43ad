package web

import (
	"errors"

	"github.com/dukex/operion-dust/pkg/dust"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleDustError maps Dust client errors to problems.
func handleDustError(c fiber.Ctx, err error) error {
	var httpErr *dust.HTTPError

	switch {
	case errors.Is(err, dust.ErrInvalidRequest):
		return badRequest(c, err.Error())
	case errors.As(err, &httpErr) && (httpErr.StatusCode == fiber.StatusUnauthorized || httpErr.StatusCode == fiber.StatusForbidden):
		problem := problems.NewStatusProblem(401).
			WithInstance(c.Path()).
			WithType("invalid_credentials").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnauthorized).JSON(problem)
	case errors.As(err, &httpErr):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("upstream_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)
	default:
		return internalError(c, err)
	}
}
