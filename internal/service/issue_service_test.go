package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

func TestCreateIssueDefaults(t *testing.T) {
	f := newFixture(t)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)

	issue := f.createIssue(t, citizen, "Broken streetlight")
	assert.Equal(t, domain.IssueStatusPending, issue.Status)
	assert.Equal(t, domain.IssuePriorityNormal, issue.Priority)
	assert.Equal(t, 0, issue.UpvoteCount)
	assert.False(t, issue.IsAssigned)
	assert.Equal(t, int64(100), issue.BoostPrice)
	assert.Equal(t, "citizen@example.com", issue.ReporterEmail)

	entries, err := f.timeline.ListForIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, MessageIssueReported, entries[0].Message)
	assert.Equal(t, domain.IssueStatusPending, entries[0].Status)
	assert.Equal(t, citizen.Email, entries[0].UpdatedBy)
	assert.Equal(t, domain.RoleCitizen, entries[0].Role)
}

func TestCreateIssueValidation(t *testing.T) {
	f := newFixture(t)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)

	_, err := f.issues.CreateIssue(context.Background(), citizen, IssueCreateInput{Title: "  ", Location: "x", Category: "road"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "description")
	assert.NotContains(t, details, "location")

	count, err := f.store.Issues().CountByReporter(context.Background(), citizen.Email)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateIssueQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)

	first := f.createIssue(t, citizen, "one")
	f.createIssue(t, citizen, "two")
	f.createIssue(t, citizen, "three")

	// Rejected issues still count toward the quota.
	_, err := f.issues.RejectIssue(ctx, admin, first.ID)
	require.NoError(t, err)

	entriesBefore := f.store.TimelineLen()
	_, err = f.issues.CreateIssue(ctx, citizen, IssueCreateInput{Title: "four", Location: "x", Category: "road", Description: "d"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeQuotaExceeded), "got %v", err)
	count, err := f.store.Issues().CountByReporter(ctx, citizen.Email)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, entriesBefore, f.store.TimelineLen(), "rejected create must not touch the timeline")

	require.NoError(t, f.store.Users().Subscribe(ctx, citizen.Email, time.Now()))
	subscribed := f.actor(t, citizen.Email)
	f.createIssue(t, subscribed, "four")
	f.createIssue(t, subscribed, "five")

	// Staff and admins are not bound by the citizen quota.
	for i := 0; i < 4; i++ {
		f.createIssue(t, admin, fmt.Sprintf("admin-%d", i))
	}
}

func TestCreateIssueQuotaConcurrent(t *testing.T) {
	f := newFixture(t)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.issues.CreateIssue(context.Background(), citizen, IssueCreateInput{
				Title: fmt.Sprintf("t%d", i), Location: "x", Category: "road", Description: "d",
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, created)
}

func TestCreateIssueKeepsIssueWhenTimelineFails(t *testing.T) {
	f := newFixture(t)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)
	f.store.FailNext("timeline.Append", errors.New("disk full"))

	issue := f.createIssue(t, citizen, "Flooded underpass")
	stored, err := f.store.Issues().GetByID(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Title, stored.Title)
	assert.Empty(t, f.messages(t, issue.ID))
}

func TestUpvoteCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := f.user(t, "reporter@example.com", domain.RoleCitizen)
	voter := f.user(t, "voter@example.com", domain.RoleCitizen)
	issue := f.createIssue(t, reporter, "Garbage pile")

	_, err := f.issues.Upvote(ctx, reporter, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.issues.Upvote(ctx, reporter, issue.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSelfUpvote))

	updated, err := f.issues.Upvote(ctx, voter, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UpvoteCount)
	assert.Equal(t, []string{voter.Email}, updated.Upvoters)

	_, err = f.issues.Upvote(ctx, voter, issue.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyUpvoted))

	stored, err := f.store.Issues().GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UpvoteCount)
	assert.NotContains(t, stored.Upvoters, reporter.Email)
}

func TestConcurrentUpvotesCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := f.user(t, "reporter@example.com", domain.RoleCitizen)
	issue := f.createIssue(t, reporter, "Open manhole")

	voters := []Actor{
		f.user(t, "a@example.com", domain.RoleCitizen),
		f.user(t, "b@example.com", domain.RoleCitizen),
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v Actor) {
			defer wg.Done()
			_, _ = f.issues.Upvote(ctx, v, issue.ID)
		}(voters[i%2])
	}
	wg.Wait()

	stored, err := f.store.Issues().GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UpvoteCount)
	assert.Len(t, stored.Upvoters, stored.UpvoteCount)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, stored.Upvoters)
}

func TestListIssuesFilteringAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		category := "road"
		if i%5 == 0 {
			category = "water"
		}
		tick := base.Add(time.Duration(i) * time.Minute)
		f.issues.now = func() time.Time { return tick }
		_, err := f.issues.CreateIssue(ctx, admin, IssueCreateInput{
			Title:       fmt.Sprintf("Issue %02d", i),
			Location:    "Mirpur",
			Category:    category,
			Description: "d",
		})
		require.NoError(t, err)
	}

	page, err := f.issues.ListIssues(ctx, IssueListFilter{Category: "road", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 20, page.Total)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 2, page.Page)
	for _, item := range page.Items {
		assert.Equal(t, "road", item.Category)
	}

	last, err := f.issues.ListIssues(ctx, IssueListFilter{Category: "road", Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 20, last.Total)
	assert.Empty(t, last.Items)

	search, err := f.issues.ListIssues(ctx, IssueListFilter{Search: "ISSUE 1"})
	require.NoError(t, err)
	assert.Equal(t, 10, search.Total)

	clamped, err := f.issues.ListIssues(ctx, IssueListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, clamped.Limit)
	assert.Equal(t, 1, clamped.Page)

	_, err = f.issues.ListIssues(ctx, IssueListFilter{Status: "bogus"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = f.issues.ListIssues(ctx, IssueListFilter{Page: math.MaxInt, Limit: 10})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation), "got %v", err)
}

func TestListIssuesSortsBoostedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Hour)
		f.issues.now = func() time.Time { return tick }
		ids = append(ids, f.createIssue(t, admin, fmt.Sprintf("i%d", i)).ID)
	}
	_, err := f.store.Issues().Boost(ctx, ids[0], time.Now())
	require.NoError(t, err)

	page, err := f.issues.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[1]}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
}

func TestCanTransitionClosure(t *testing.T) {
	all := []domain.IssueStatus{
		domain.IssueStatusPending, domain.IssueStatusInProgress, domain.IssueStatusWorking,
		domain.IssueStatusResolved, domain.IssueStatusClosed, domain.IssueStatusRejected,
	}
	allowed := map[[2]domain.IssueStatus]bool{
		{domain.IssueStatusPending, domain.IssueStatusInProgress}: true,
		{domain.IssueStatusInProgress, domain.IssueStatusWorking}: true,
		{domain.IssueStatusWorking, domain.IssueStatusResolved}:   true,
		{domain.IssueStatusResolved, domain.IssueStatusClosed}:    true,
	}
	adminOnly := map[[2]domain.IssueStatus]bool{
		{domain.IssueStatusPending, domain.IssueStatusRejected}:    true,
		{domain.IssueStatusInProgress, domain.IssueStatusRejected}: true,
	}
	for _, from := range all {
		for _, to := range all {
			pair := [2]domain.IssueStatus{from, to}
			assert.Equal(t, allowed[pair], CanTransition(from, to, domain.RoleStaff), "staff %s -> %s", from, to)
			assert.Equal(t, allowed[pair] || adminOnly[pair], CanTransition(from, to, domain.RoleAdmin), "admin %s -> %s", from, to)
		}
	}
}

func TestInvalidTransitionHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)
	issue := f.createIssue(t, admin, "Leaking pipe")

	_, err := f.issues.UpdateStatus(ctx, admin, issue.ID, domain.IssueStatusResolved)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	stored, err := f.store.Issues().GetByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusPending, stored.Status)
	assert.Equal(t, []string{MessageIssueReported}, f.messages(t, issue.ID))

	_, err = f.issues.UpdateStatus(ctx, admin, issue.ID, "archived")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestLostTransitionRaceIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)
	issue := f.createIssue(t, admin, "Fallen tree")

	stale, err := f.store.Issues().GetByID(ctx, issue.ID)
	require.NoError(t, err)
	_, err = f.issues.UpdateStatus(ctx, admin, issue.ID, domain.IssueStatusInProgress)
	require.NoError(t, err)

	_, err = f.issues.transition(ctx, admin, stale, domain.IssueStatusInProgress)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
	assert.Equal(t, []string{MessageIssueReported, MessageStatusChanged(domain.IssueStatusInProgress)}, f.messages(t, issue.ID))
}

func TestStaffMayOnlyMoveAssignedIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)
	staff := f.user(t, "staff@example.com", domain.RoleStaff)
	other := f.user(t, "other@example.com", domain.RoleStaff)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)
	issue := f.createIssue(t, citizen, "Broken bench")

	_, err := f.issues.UpdateStatus(ctx, staff, issue.ID, domain.IssueStatusInProgress)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.assignments.AssignIssue(ctx, admin, issue.ID, staff.Email)
	require.NoError(t, err)

	_, err = f.issues.UpdateStatus(ctx, other, issue.ID, domain.IssueStatusInProgress)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.issues.UpdateStatus(ctx, citizen, issue.ID, domain.IssueStatusInProgress)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	updated, err := f.issues.UpdateStatus(ctx, staff, issue.ID, domain.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusInProgress, updated.Status)
}

func TestRejectIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)
	staff := f.user(t, "staff@example.com", domain.RoleStaff)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)

	issue := f.createIssue(t, citizen, "Spam report")
	_, err := f.issues.RejectIssue(ctx, staff, issue.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	rejected, err := f.issues.RejectIssue(ctx, admin, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusRejected, rejected.Status)
	assert.Equal(t, []string{MessageIssueReported, MessageIssueRejected}, f.messages(t, issue.ID))

	_, err = f.issues.UpdateStatus(ctx, admin, issue.ID, domain.IssueStatusInProgress)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	working := f.createIssue(t, citizen, "Real report")
	for _, next := range []domain.IssueStatus{domain.IssueStatusInProgress, domain.IssueStatusWorking} {
		_, err = f.issues.UpdateStatus(ctx, admin, working.ID, next)
		require.NoError(t, err)
	}
	_, err = f.issues.RejectIssue(ctx, admin, working.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	_, err = f.issues.RejectIssue(ctx, admin, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestGetIssue(t *testing.T) {
	f := newFixture(t)
	citizen := f.user(t, "citizen@example.com", domain.RoleCitizen)
	issue := f.createIssue(t, citizen, "Noisy generator")

	detail, err := f.issues.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, detail.Issue.ID)
	require.Len(t, detail.Timeline, 1)

	_, err = f.issues.GetIssue(context.Background(), "nope")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
