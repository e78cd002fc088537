package domain

import "time"

// Role enumerates authorization roles.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleStaff || r == RoleAdmin
}

// User is the stored profile behind a verified identity.
type User struct {
	Email        string
	UID          string
	Name         string
	Role         Role
	IsSubscribed bool
	SubscribedAt *time.Time
	Blocked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
