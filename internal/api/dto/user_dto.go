package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// RegisterUserRequest payload.
type RegisterUserRequest struct {
	Name string `json:"name"`
}

// SetRoleRequest payload.
type SetRoleRequest struct {
	Role domain.Role `json:"role"`
}

// SetBlockedRequest payload.
type SetBlockedRequest struct {
	Blocked *bool `json:"blocked"`
}

// UserResponse renders a stored profile.
type UserResponse struct {
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	Role         domain.Role `json:"role"`
	IsSubscribed bool        `json:"isSubscribed"`
	SubscribedAt *time.Time  `json:"subscribedAt,omitempty"`
	Blocked      bool        `json:"blocked"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		IsSubscribed: user.IsSubscribed,
		SubscribedAt: user.SubscribedAt,
		Blocked:      user.Blocked,
		CreatedAt:    user.CreatedAt,
	}
}
