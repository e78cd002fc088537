package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// UserRepository defines persistence access for user profiles.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Subscribe(ctx context.Context, email string, at time.Time) error
	SetRole(ctx context.Context, email string, role domain.Role) error
	SetBlocked(ctx context.Context, email string, blocked bool) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, uid, name, role, is_subscribed, blocked, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		user.Email,
		user.UID,
		user.Name,
		user.Role,
		user.IsSubscribed,
		user.Blocked,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translate(err)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT email, uid, name, role, is_subscribed, subscribed_at, blocked, created_at, updated_at
        FROM users WHERE email=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.Email,
		&user.UID,
		&user.Name,
		&user.Role,
		&user.IsSubscribed,
		&user.SubscribedAt,
		&user.Blocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) Subscribe(ctx context.Context, email string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET is_subscribed=TRUE, subscribed_at=$2, updated_at=NOW() WHERE email=$1`, email, at)
}

func (r *userRepository) SetRole(ctx context.Context, email string, role domain.Role) error {
	return r.exec(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE email=$1`, email, role)
}

func (r *userRepository) SetBlocked(ctx context.Context, email string, blocked bool) error {
	return r.exec(ctx, `UPDATE users SET blocked=$2, updated_at=NOW() WHERE email=$1`, email, blocked)
}

func (r *userRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
