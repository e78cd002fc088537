package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// actorFrom returns the registered caller. Routes guard this with
// auth.RequireRole, so a missing profile here is a wiring error.
func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	if principal.User == nil {
		return service.Actor{}, apperrors.NewForbidden("user profile not registered")
	}
	return service.ActorFromUser(principal.User), nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// param copies a route parameter out of the pooled request buffer. Values
// handed to services may outlive the request through published events.
func param(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Params(name))
}
