package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// UserService manages stored profiles behind verified identities.
type UserService struct {
	users repository.UserRepository
	now   func() time.Time
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users, now: time.Now}
}

// Register creates a citizen profile for a verified identity.
func (s *UserService) Register(ctx context.Context, identity domain.Identity, name string) (*domain.User, error) {
	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, apperrors.NewValidationError("identity has no email", nil)
	}
	now := s.now()
	user := &domain.User{
		Email:     email,
		UID:       identity.UID,
		Name:      strings.TrimSpace(name),
		Role:      domain.RoleCitizen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("user already registered", map[string]any{"email": email})
		}
		return nil, err
	}
	return user, nil
}

// Me returns the caller's profile.
func (s *UserService) Me(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	return s.get(ctx, normalizeEmail(identity.Email))
}

// SetRole changes another user's role.
func (s *UserService) SetRole(ctx context.Context, actor Actor, email string, role domain.Role) (*domain.User, error) {
	email = normalizeEmail(email)
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	if err := s.checkAdminOnOther(actor, email); err != nil {
		return nil, err
	}
	if err := s.users.SetRole(ctx, email, role); err != nil {
		return nil, s.mapUserErr(err, email)
	}
	return s.get(ctx, email)
}

// SetBlocked blocks or unblocks another user.
func (s *UserService) SetBlocked(ctx context.Context, actor Actor, email string, blocked bool) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkAdminOnOther(actor, email); err != nil {
		return nil, err
	}
	if err := s.users.SetBlocked(ctx, email, blocked); err != nil {
		return nil, s.mapUserErr(err, email)
	}
	return s.get(ctx, email)
}

func (s *UserService) checkAdminOnOther(actor Actor, email string) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	if email == "" {
		return apperrors.NewValidationError("email is required", nil)
	}
	if email == actor.Email {
		return apperrors.NewValidationError("admins cannot change their own account", nil)
	}
	return nil
}

func (s *UserService) get(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.mapUserErr(err, email)
	}
	return user, nil
}

func (s *UserService) mapUserErr(err error, email string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("user", map[string]any{"email": email})
	}
	return err
}
