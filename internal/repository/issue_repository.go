package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IssueFilter captures list parameters.
type IssueFilter struct {
	Status        *domain.IssueStatus
	Category      *string
	Priority      *domain.IssuePriority
	ReporterEmail *string
	SearchTerm    *string
	Limit         int
	Offset        int
}

// IssueRepository encapsulates issue persistence. Every mutating method is a
// single conditional statement so concurrent callers cannot skip a precondition.
type IssueRepository interface {
	// CreateWithQuota inserts the issue unless the reporter already has limit
	// issues. A limit <= 0 disables the check.
	CreateWithQuota(ctx context.Context, issue *domain.Issue, limit int) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	Count(ctx context.Context, filter IssueFilter) (int, error)
	CountByReporter(ctx context.Context, email string) (int, error)
	// AddUpvote increments the counter and records voter in one step. It
	// returns ErrConflict when voter is the reporter or already voted.
	AddUpvote(ctx context.Context, id, voter string) error
	// TransitionStatus moves the issue from -> to, returning ErrConflict when
	// the stored status is no longer from.
	TransitionStatus(ctx context.Context, id string, from, to domain.IssueStatus) (*domain.Issue, error)
	// MarkAssigned flips isAssigned, returning ErrConflict when already set.
	MarkAssigned(ctx context.Context, id string) error
	ClearAssigned(ctx context.Context, id string) error
	Boost(ctx context.Context, id string, at time.Time) (*domain.Issue, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, reporter_email, title, location, category, description, status, priority,
               upvote_count, upvoters, boost_price, is_assigned, created_at, updated_at, boosted_at`

func (r *issueRepository) CreateWithQuota(ctx context.Context, issue *domain.Issue, limit int) error {
	const insert = `
        INSERT INTO issues (id, reporter_email, title, location, category, description, status, priority,
                            upvote_count, upvoters, boost_price, is_assigned, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if limit > 0 {
			// Serializes creates per reporter so the count below cannot go stale.
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, issue.ReporterEmail); err != nil {
				return err
			}
			var count int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM issues WHERE reporter_email=$1`, issue.ReporterEmail).Scan(&count); err != nil {
				return err
			}
			if count >= limit {
				return ErrQuotaExceeded
			}
		}
		upvoters := issue.Upvoters
		if upvoters == nil {
			upvoters = []string{}
		}
		_, err := tx.Exec(ctx, insert,
			issue.ID,
			issue.ReporterEmail,
			issue.Title,
			issue.Location,
			issue.Category,
			issue.Description,
			issue.Status,
			issue.Priority,
			issue.UpvoteCount,
			upvoters,
			issue.BoostPrice,
			issue.IsAssigned,
			issue.CreatedAt,
			issue.UpdatedAt,
		)
		return err
	})
	return translate(err)
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *issueRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Issue, error) {
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return issue, nil
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	where, args := buildIssueWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s
             ORDER BY CASE priority WHEN 'high' THEN 1 ELSE 0 END DESC, created_at DESC, id DESC
             LIMIT %d OFFSET %d`, issueColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}

func (r *issueRepository) Count(ctx context.Context, filter IssueFilter) (int, error) {
	where, args := buildIssueWhere(filter)
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues WHERE `+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *issueRepository) CountByReporter(ctx context.Context, email string) (int, error) {
	return r.Count(ctx, IssueFilter{ReporterEmail: &email})
}

func (r *issueRepository) AddUpvote(ctx context.Context, id, voter string) error {
	const query = `
        UPDATE issues SET upvote_count = upvote_count + 1, upvoters = array_append(upvoters, $2::text), updated_at = NOW()
        WHERE id = $1 AND reporter_email <> $2::text AND NOT ($2::text = ANY(upvoters))`
	cmd, err := r.pool.Exec(ctx, query, id, voter)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOr(ctx, id, ErrConflict)
	}
	return nil
}

func (r *issueRepository) TransitionStatus(ctx context.Context, id string, from, to domain.IssueStatus) (*domain.Issue, error) {
	query := `UPDATE issues SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2 RETURNING ` + issueColumns
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, id, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missingOr(ctx, id, ErrConflict)
		}
		return nil, err
	}
	return issue, nil
}

func (r *issueRepository) MarkAssigned(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE issues SET is_assigned=TRUE, updated_at=NOW() WHERE id=$1 AND is_assigned=FALSE`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOr(ctx, id, ErrConflict)
	}
	return nil
}

func (r *issueRepository) ClearAssigned(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE issues SET is_assigned=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *issueRepository) Boost(ctx context.Context, id string, at time.Time) (*domain.Issue, error) {
	query := `UPDATE issues SET priority='high', boosted_at=$2, updated_at=NOW() WHERE id=$1 RETURNING ` + issueColumns
	return r.fetchSingle(ctx, query, id, at)
}

// missingOr distinguishes a vanished row from a failed precondition.
func (r *issueRepository) missingOr(ctx context.Context, id string, fallback error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return fallback
}

func buildIssueWhere(filter IssueFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.ReporterEmail != nil {
		args = append(args, *filter.ReporterEmail)
		clauses = append(clauses, fmt.Sprintf("reporter_email=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchTerm))) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(location) LIKE %s)", placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	if err := row.Scan(
		&issue.ID,
		&issue.ReporterEmail,
		&issue.Title,
		&issue.Location,
		&issue.Category,
		&issue.Description,
		&issue.Status,
		&issue.Priority,
		&issue.UpvoteCount,
		&issue.Upvoters,
		&issue.BoostPrice,
		&issue.IsAssigned,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&issue.BoostedAt,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}
