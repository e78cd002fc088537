package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// AssignmentRepository persists issue-to-staff bindings.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.Assignment) error
	GetByIssue(ctx context.Context, issueID string) (*domain.Assignment, error)
	// ListByStaff joins the staff's assignments with the current issue state.
	ListByStaff(ctx context.Context, staffEmail string) ([]domain.AssignedIssue, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (id, issue_id, staff_email, assigned_by, assigned_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query,
		assignment.ID,
		assignment.IssueID,
		assignment.StaffEmail,
		assignment.AssignedBy,
		assignment.AssignedAt,
	)
	return translate(err)
}

func (r *assignmentRepository) GetByIssue(ctx context.Context, issueID string) (*domain.Assignment, error) {
	const query = `
        SELECT id, issue_id, staff_email, assigned_by, assigned_at
        FROM assignments WHERE issue_id=$1 ORDER BY assigned_at DESC LIMIT 1`
	var a domain.Assignment
	if err := r.pool.QueryRow(ctx, query, issueID).Scan(
		&a.ID,
		&a.IssueID,
		&a.StaffEmail,
		&a.AssignedBy,
		&a.AssignedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *assignmentRepository) ListByStaff(ctx context.Context, staffEmail string) ([]domain.AssignedIssue, error) {
	const query = `
        SELECT a.id, a.issue_id, a.staff_email, a.assigned_by, a.assigned_at,
               i.title, i.location, i.category, i.status, i.priority
        FROM assignments a
        JOIN issues i ON i.id = a.issue_id
        WHERE a.staff_email=$1
        ORDER BY a.assigned_at DESC`
	rows, err := r.pool.Query(ctx, query, staffEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignedIssue
	for rows.Next() {
		var item domain.AssignedIssue
		if err := rows.Scan(
			&item.Assignment.ID,
			&item.Assignment.IssueID,
			&item.Assignment.StaffEmail,
			&item.Assignment.AssignedBy,
			&item.Assignment.AssignedAt,
			&item.Title,
			&item.Location,
			&item.Category,
			&item.Status,
			&item.Priority,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
