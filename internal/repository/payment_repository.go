package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// PaymentRepository is the append-only payment ledger.
type PaymentRepository interface {
	// Create returns ErrDuplicate when the transaction id was already recorded.
	Create(ctx context.Context, payment *domain.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Payment, error)
	ListAll(ctx context.Context) ([]domain.Payment, error)
}

type paymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository builds repository.
func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentColumns = `id, email, issue_id, amount, currency, type, transaction_id, source, created_at`

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	const query = `
        INSERT INTO payments (id, email, issue_id, amount, currency, type, transaction_id, source, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.pool.Exec(ctx, query,
		payment.ID,
		payment.Email,
		payment.IssueID,
		payment.Amount,
		payment.Currency,
		payment.Type,
		payment.TransactionID,
		payment.Source,
		payment.CreatedAt,
	)
	return translate(err)
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, transactionID)
	if err != nil {
		return nil, err
	}
	payments, err := scanPayments(rows)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, ErrNotFound
	}
	return &payments[0], nil
}

func (r *paymentRepository) ListByEmail(ctx context.Context, email string) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE email=$1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

func (r *paymentRepository) ListAll(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	var result []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID,
			&p.Email,
			&p.IssueID,
			&p.Amount,
			&p.Currency,
			&p.Type,
			&p.TransactionID,
			&p.Source,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
