package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// AssignmentService binds issues to staff members.
type AssignmentService struct {
	issues      repository.IssueRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	timeline    *TimelineService
	events      eventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// AssignmentDependencies bundles collaborators for the assignment service.
type AssignmentDependencies struct {
	IssueRepo      repository.IssueRepository
	AssignmentRepo repository.AssignmentRepository
	UserRepo       repository.UserRepository
	Timeline       *TimelineService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := orNop(deps.Logger)
	return &AssignmentService{
		issues:      deps.IssueRepo,
		assignments: deps.AssignmentRepo,
		users:       deps.UserRepo,
		timeline:    deps.Timeline,
		events:      eventPublisher{dispatcher: deps.Dispatcher, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

// AssignIssue gives an open, unassigned issue to a staff member.
func (s *AssignmentService) AssignIssue(ctx context.Context, actor Actor, issueID, staffEmail string) (*domain.Assignment, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins may assign issues")
	}
	staffEmail = normalizeEmail(staffEmail)
	if issueID == "" || staffEmail == "" {
		return nil, apperrors.NewValidationError("issue id and staff email are required", nil)
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		}
		return nil, err
	}
	if issue.Status.Terminal() {
		return nil, apperrors.NewInvalidTransition(string(issue.Status), "assigned")
	}

	staff, err := s.users.GetByEmail(ctx, staffEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("staff member", map[string]any{"email": staffEmail})
		}
		return nil, err
	}
	if staff.Role != domain.RoleStaff {
		return nil, apperrors.NewValidationError("assignee is not a staff member", map[string]any{"email": staffEmail})
	}

	if err := s.issues.MarkAssigned(ctx, issueID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		case errors.Is(err, repository.ErrConflict):
			return nil, apperrors.NewConflict("issue already assigned", map[string]any{"id": issueID})
		}
		return nil, err
	}

	assignment := &domain.Assignment{
		ID:         uuid.NewString(),
		IssueID:    issueID,
		StaffEmail: staffEmail,
		AssignedBy: actor.Email,
		AssignedAt: s.now(),
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		if clearErr := s.issues.ClearAssigned(ctx, issueID); clearErr != nil {
			s.logger.Error("failed to clear assignment flag",
				zap.String("issue_id", issueID), zap.Error(clearErr))
		}
		return nil, err
	}

	if _, err := s.timeline.Record(ctx, issueID, issue.Status, MessageAssigned(staffEmail), actor); err != nil {
		s.logger.Warn("timeline append failed after assignment",
			zap.String("issue_id", issueID), zap.Error(err))
	}

	s.events.publishEvent(ctx, events.Event{
		Type:    events.EventIssueAssigned,
		IssueID: issueID,
		Actor:   actor.eventActor(),
		Payload: events.IssueAssignedPayload{StaffEmail: staffEmail},
	})
	return assignment, nil
}

// ListAssignedIssues returns the staff member's assignments with live issue state.
func (s *AssignmentService) ListAssignedIssues(ctx context.Context, actor Actor) ([]domain.AssignedIssue, error) {
	if actor.Role != domain.RoleStaff {
		return nil, apperrors.NewForbidden("staff role required")
	}
	items, err := s.assignments.ListByStaff(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.AssignedIssue{}
	}
	return items, nil
}
