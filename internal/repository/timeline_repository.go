package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// TimelineRepository stores append-only audit entries.
type TimelineRepository interface {
	Append(ctx context.Context, entry *domain.TimelineEntry) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.TimelineEntry, error)
}

type timelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository builds repository.
func NewTimelineRepository(pool *pgxpool.Pool) TimelineRepository {
	return &timelineRepository{pool: pool}
}

func (r *timelineRepository) Append(ctx context.Context, entry *domain.TimelineEntry) error {
	const query = `
        INSERT INTO timeline (id, issue_id, status, message, updated_by, role, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING seq`
	return r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.IssueID,
		entry.Status,
		entry.Message,
		entry.UpdatedBy,
		entry.Role,
		entry.CreatedAt,
	).Scan(&entry.Sequence)
}

func (r *timelineRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.TimelineEntry, error) {
	const query = `
        SELECT id, seq, issue_id, status, message, updated_by, role, created_at
        FROM timeline WHERE issue_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimelineEntry
	for rows.Next() {
		var entry domain.TimelineEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Sequence,
			&entry.IssueID,
			&entry.Status,
			&entry.Message,
			&entry.UpdatedBy,
			&entry.Role,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
