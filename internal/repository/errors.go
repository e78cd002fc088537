package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a conditional update matched no row.
	ErrConflict = errors.New("record state changed")
	// ErrQuotaExceeded is returned when a reporter has no issue quota left.
	ErrQuotaExceeded = errors.New("issue quota exceeded")
)

const uniqueViolation = "23505"

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
