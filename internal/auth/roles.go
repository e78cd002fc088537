package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// Authorize decides whether user may perform a request with the given method.
// An empty allowed list admits any registered role.
func Authorize(user *domain.User, method string, allowed ...domain.Role) error {
	if user == nil {
		return apperrors.NewForbidden("user profile not registered")
	}
	if user.Blocked && mutating(method) {
		return apperrors.NewForbidden("user is blocked")
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, role := range allowed {
		if user.Role == role {
			return nil
		}
	}
	return apperrors.NewForbidden("insufficient role")
}

func mutating(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// RequireRole gates a route on the caller's stored profile.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := Authorize(principal.User, c.Method(), allowed...); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireIdentity ensures a verified token is present, with or without profile.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
