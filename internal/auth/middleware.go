package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. User is nil until the
// identity registers a profile.
type Principal struct {
	Identity domain.Identity
	User     *domain.User
}

// Role returns the stored role, empty when no profile exists.
func (p *Principal) Role() domain.Role {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	verifier IdentityVerifier
	users    repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(verifier IdentityVerifier, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	identity, err := m.verifier.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{Identity: identity}
	user, err := m.users.GetByEmail(c.UserContext(), identity.Email)
	switch {
	case err == nil:
		principal.User = user
	case errors.Is(err, repository.ErrNotFound):
	default:
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
