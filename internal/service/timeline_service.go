package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// Timeline messages.
const (
	MessageIssueReported = "Issue reported"
	MessageIssueRejected = "Issue rejected by admin"
	MessageIssueBoosted  = "Issue priority boosted"
)

// MessageStatusChanged renders the timeline message for a transition.
func MessageStatusChanged(status domain.IssueStatus) string {
	return "Status changed to " + string(status)
}

// MessageAssigned renders the timeline message for an assignment.
func MessageAssigned(staffEmail string) string {
	return "Assigned to " + staffEmail
}

// TimelineService appends and reads the per-issue audit log.
type TimelineService struct {
	issues   repository.IssueRepository
	timeline repository.TimelineRepository
	now      func() time.Time
}

// NewTimelineService constructs the service.
func NewTimelineService(issues repository.IssueRepository, timeline repository.TimelineRepository) *TimelineService {
	return &TimelineService{issues: issues, timeline: timeline, now: time.Now}
}

// Record appends one entry. Entries are never updated or deleted.
func (s *TimelineService) Record(ctx context.Context, issueID string, status domain.IssueStatus, message string, actor Actor) (*domain.TimelineEntry, error) {
	if strings.TrimSpace(issueID) == "" || strings.TrimSpace(message) == "" {
		return nil, apperrors.NewValidationError("issue id and message are required", nil)
	}
	entry := &domain.TimelineEntry{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Status:    status,
		Message:   message,
		UpdatedBy: actor.Email,
		Role:      actor.Role,
		CreatedAt: s.now(),
	}
	if err := s.timeline.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListForIssue returns entries in append order.
func (s *TimelineService) ListForIssue(ctx context.Context, issueID string) ([]domain.TimelineEntry, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		}
		return nil, err
	}
	return s.timeline.ListByIssue(ctx, issueID)
}
