package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

func TestTimelineRecordAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", domain.RoleAdmin)
	issue := f.createIssue(t, admin, "Loose cables")

	entry, err := f.timeline.Record(ctx, issue.ID, domain.IssueStatusPending, "Inspected on site", admin)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, admin.Email, entry.UpdatedBy)

	_, err = f.timeline.Record(ctx, issue.ID, domain.IssueStatusPending, " ", admin)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	assert.Equal(t, []string{MessageIssueReported, "Inspected on site"}, f.messages(t, issue.ID))

	_, err = f.timeline.ListForIssue(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
