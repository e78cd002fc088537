package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
)

// newPostgres connects to POSTGRES_TEST_DSN inside a fresh schema with the
// migrations applied. Tests skip when the variable is unset.
func newPostgres(t *testing.T) *persistence.Postgres {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	schema := "issue_test_" + uuid.NewString()[:8]

	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, Schema: schema, MaxConns: 20}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pg.PoolHandle().Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		pg.Close()
	})

	require.NoError(t, persistence.RunMigrations(ctx, pg.PoolHandle(), "../../migrations", zap.NewNop()))
	return pg
}

func newIssue(reporter, title string) *domain.Issue {
	now := time.Now().UTC()
	return &domain.Issue{
		ID:            uuid.NewString(),
		ReporterEmail: reporter,
		Title:         title,
		Location:      "Dhanmondi",
		Category:      "road",
		Description:   "d",
		Status:        domain.IssueStatusPending,
		Priority:      domain.IssuePriorityNormal,
		BoostPrice:    100,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPostgresMigrationsAreRecordedOnce(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()

	require.NoError(t, persistence.RunMigrations(ctx, pg.PoolHandle(), "../../migrations", zap.NewNop()))
	applied, err := persistence.AppliedMigrations(ctx, pg.PoolHandle())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, applied)
}

func TestPostgresCreateWithQuota(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())

	for i := 0; i < 3; i++ {
		require.NoError(t, issues.CreateWithQuota(ctx, newIssue("citizen@example.com", fmt.Sprintf("t%d", i)), 3))
	}
	err := issues.CreateWithQuota(ctx, newIssue("citizen@example.com", "fourth"), 3)
	assert.ErrorIs(t, err, repository.ErrQuotaExceeded)

	count, err := issues.CountByReporter(ctx, "citizen@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Zero disables the check.
	require.NoError(t, issues.CreateWithQuota(ctx, newIssue("citizen@example.com", "unlimited"), 0))
}

func TestPostgresCreateWithQuotaConcurrent(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := issues.CreateWithQuota(ctx, newIssue("racer@example.com", fmt.Sprintf("t%d", i)), 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, repository.ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, created)
	assert.Equal(t, 7, rejected)
}

func TestPostgresConcurrentUpvotesCollapse(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())
	issue := newIssue("reporter@example.com", "Open manhole")
	require.NoError(t, issues.CreateWithQuota(ctx, issue, 0))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := issues.AddUpvote(ctx, issue.ID, "voter@example.com")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	assert.ErrorIs(t, issues.AddUpvote(ctx, issue.ID, "reporter@example.com"), repository.ErrConflict)
	assert.ErrorIs(t, issues.AddUpvote(ctx, uuid.NewString(), "voter@example.com"), repository.ErrNotFound)

	stored, err := issues.GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UpvoteCount)
	assert.Equal(t, []string{"voter@example.com"}, stored.Upvoters)
}

func TestPostgresTransitionIsConditional(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())
	issue := newIssue("reporter@example.com", "Flooded road")
	require.NoError(t, issues.CreateWithQuota(ctx, issue, 0))

	updated, err := issues.TransitionStatus(ctx, issue.ID, domain.IssueStatusPending, domain.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusInProgress, updated.Status)

	_, err = issues.TransitionStatus(ctx, issue.ID, domain.IssueStatusPending, domain.IssueStatusRejected)
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = issues.TransitionStatus(ctx, uuid.NewString(), domain.IssueStatusPending, domain.IssueStatusInProgress)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stored, err := issues.GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusInProgress, stored.Status)

	require.NoError(t, issues.MarkAssigned(ctx, issue.ID))
	assert.ErrorIs(t, issues.MarkAssigned(ctx, issue.ID), repository.ErrConflict)
	require.NoError(t, issues.ClearAssigned(ctx, issue.ID))
	require.NoError(t, issues.MarkAssigned(ctx, issue.ID))
}

func TestPostgresListOrdersAndSearches(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i, title := range []string{"Broken 100% light", "Pothole", "Garbage"} {
		issue := newIssue("reporter@example.com", title)
		issue.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, issues.CreateWithQuota(ctx, issue, 0))
		ids = append(ids, issue.ID)
	}
	_, err := issues.Boost(ctx, ids[0], time.Now())
	require.NoError(t, err)

	all, err := issues.List(ctx, repository.IssueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[1]}, []string{all[0].ID, all[1].ID, all[2].ID})

	term := "100%"
	found, err := issues.List(ctx, repository.IssueFilter{SearchTerm: &term, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[0], found[0].ID)
}

func TestPostgresPaymentTransactionIDIsUnique(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	payments := repository.NewPaymentRepository(pg.PoolHandle())

	first := &domain.Payment{
		ID: uuid.NewString(), Email: "citizen@example.com", Amount: 1000, Currency: "bdt",
		Type: domain.PaymentTypeSubscription, TransactionID: "pi_1", Source: domain.PaymentSourceConfirm,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, payments.Create(ctx, first))

	second := *first
	second.ID = uuid.NewString()
	second.Source = domain.PaymentSourceWebhook
	assert.ErrorIs(t, payments.Create(ctx, &second), repository.ErrDuplicate)

	stored, err := payments.GetByTransactionID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, domain.PaymentSourceConfirm, stored.Source)

	_, err = payments.GetByTransactionID(ctx, "pi_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresTimelineKeepsAppendOrder(t *testing.T) {
	pg := newPostgres(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(pg.PoolHandle())
	timeline := repository.NewTimelineRepository(pg.PoolHandle())
	issue := newIssue("reporter@example.com", "Leaning pole")
	require.NoError(t, issues.CreateWithQuota(ctx, issue, 0))

	// Identical timestamps: order must come from the sequence, not created_at.
	at := time.Now().UTC()
	messages := []string{"Issue reported", "Assigned to staff@example.com", "Status changed to in-progress"}
	for _, msg := range messages {
		entry := &domain.TimelineEntry{
			ID: uuid.NewString(), IssueID: issue.ID, Status: domain.IssueStatusPending,
			Message: msg, UpdatedBy: "admin@example.com", Role: domain.RoleAdmin, CreatedAt: at,
		}
		require.NoError(t, timeline.Append(ctx, entry))
		assert.NotZero(t, entry.Sequence)
	}

	entries, err := timeline.ListByIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(messages))
	for i, entry := range entries {
		assert.Equal(t, messages[i], entry.Message)
		if i > 0 {
			assert.Greater(t, entry.Sequence, entries[i-1].Sequence)
		}
	}
}
