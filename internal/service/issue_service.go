package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	// maxListOffset bounds (page-1)*limit so the offset never overflows.
	maxListOffset = math.MaxInt32
)

// IssueService drives the issue lifecycle.
type IssueService struct {
	issues      repository.IssueRepository
	assignments repository.AssignmentRepository
	timeline    *TimelineService
	events      eventPublisher
	logger      *zap.Logger
	freeLimit   int
	boostPrice  int64
	now         func() time.Time
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo      repository.IssueRepository
	AssignmentRepo repository.AssignmentRepository
	Timeline       *TimelineService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	FreeIssueLimit int
	BoostPrice     int64
}

// IssueCreateInput describes issue creation payload.
type IssueCreateInput struct {
	Title       string
	Location    string
	Category    string
	Description string
}

// IssueListFilter describes public listing parameters.
type IssueListFilter struct {
	Status   string
	Category string
	Priority string
	Search   string
	Page     int
	Limit    int
}

// IssuePage is one page of a filtered listing.
type IssuePage struct {
	Items []domain.Issue
	Total int
	Page  int
	Limit int
}

// IssueDetail is an issue with its audit log.
type IssueDetail struct {
	Issue    *domain.Issue
	Timeline []domain.TimelineEntry
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := orNop(deps.Logger)
	return &IssueService{
		issues:      deps.IssueRepo,
		assignments: deps.AssignmentRepo,
		timeline:    deps.Timeline,
		events:      eventPublisher{dispatcher: deps.Dispatcher, logger: logger},
		logger:      logger,
		freeLimit:   deps.FreeIssueLimit,
		boostPrice:  deps.BoostPrice,
		now:         time.Now,
	}
}

// CreateIssue files a new report for the actor, enforcing the free quota for
// unsubscribed citizens.
func (s *IssueService) CreateIssue(ctx context.Context, actor Actor, input IssueCreateInput) (*domain.Issue, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Location = strings.TrimSpace(input.Location)
	input.Category = strings.TrimSpace(input.Category)
	input.Description = strings.TrimSpace(input.Description)

	missing := map[string]any{}
	for field, value := range map[string]string{
		"title":       input.Title,
		"location":    input.Location,
		"category":    input.Category,
		"description": input.Description,
	} {
		if value == "" {
			missing[field] = "required"
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", missing)
	}

	now := s.now()
	issue := &domain.Issue{
		ID:            uuid.NewString(),
		ReporterEmail: actor.Email,
		Title:         input.Title,
		Location:      input.Location,
		Category:      input.Category,
		Description:   input.Description,
		Status:        domain.IssueStatusPending,
		Priority:      domain.IssuePriorityNormal,
		Upvoters:      []string{},
		BoostPrice:    s.boostPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	limit := 0
	if actor.Role == domain.RoleCitizen && !actor.Subscribed {
		limit = s.freeLimit
	}
	if err := s.issues.CreateWithQuota(ctx, issue, limit); err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, apperrors.NewQuotaExceeded(limit)
		}
		return nil, err
	}

	if _, err := s.timeline.Record(ctx, issue.ID, issue.Status, MessageIssueReported, actor); err != nil {
		s.logger.Warn("timeline append failed after issue creation",
			zap.String("issue_id", issue.ID), zap.Error(err))
	}

	s.events.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		Actor:   actor.eventActor(),
		Payload: events.IssueCreatedPayload{
			Title:    issue.Title,
			Category: issue.Category,
			Location: issue.Location,
		},
	})
	return issue, nil
}

// Upvote records one vote per non-reporter user.
func (s *IssueService) Upvote(ctx context.Context, actor Actor, issueID string) (*domain.Issue, error) {
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.ReporterEmail == actor.Email {
		return nil, apperrors.NewSelfUpvoteForbidden()
	}
	if issue.HasUpvoter(actor.Email) {
		return nil, apperrors.NewAlreadyUpvoted()
	}

	if err := s.issues.AddUpvote(ctx, issueID, actor.Email); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		case errors.Is(err, repository.ErrConflict):
			// The reporter never changes, so a lost race means a concurrent vote landed first.
			return nil, apperrors.NewAlreadyUpvoted()
		}
		return nil, err
	}

	updated, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	s.events.publishEvent(ctx, events.Event{
		Type:    events.EventIssueUpvoted,
		IssueID: updated.ID,
		Actor:   actor.eventActor(),
		Payload: events.IssueUpvotedPayload{Voter: actor.Email},
	})
	return updated, nil
}

// ListIssues returns a filtered page and the total for the filter.
func (s *IssueService) ListIssues(ctx context.Context, filter IssueListFilter) (*IssuePage, error) {
	repoFilter, page, limit, err := buildIssueFilter(filter)
	if err != nil {
		return nil, err
	}

	var (
		items []domain.Issue
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.issues.List(gctx, repoFilter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.issues.Count(gctx, repoFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Issue{}
	}
	return &IssuePage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func buildIssueFilter(filter IssueListFilter) (repository.IssueFilter, int, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if page-1 > maxListOffset/limit {
		return repository.IssueFilter{}, 0, 0, apperrors.NewValidationError("page out of range", map[string]any{"page": page})
	}

	repoFilter := repository.IssueFilter{Limit: limit, Offset: (page - 1) * limit}
	if v := strings.TrimSpace(filter.Status); v != "" {
		status := domain.IssueStatus(v)
		if !status.Valid() {
			return repoFilter, 0, 0, apperrors.NewValidationError("unknown status", map[string]any{"status": v})
		}
		repoFilter.Status = &status
	}
	if v := strings.TrimSpace(filter.Priority); v != "" {
		priority := domain.IssuePriority(v)
		if !priority.Valid() {
			return repoFilter, 0, 0, apperrors.NewValidationError("unknown priority", map[string]any{"priority": v})
		}
		repoFilter.Priority = &priority
	}
	if v := strings.TrimSpace(filter.Category); v != "" {
		repoFilter.Category = &v
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		repoFilter.SearchTerm = &v
	}
	return repoFilter, page, limit, nil
}

// GetIssue returns one issue with its timeline.
func (s *IssueService) GetIssue(ctx context.Context, issueID string) (*IssueDetail, error) {
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	entries, err := s.timeline.ListForIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return &IssueDetail{Issue: issue, Timeline: entries}, nil
}

// UpdateStatus advances an issue along the lifecycle. Staff may only move
// issues assigned to them.
func (s *IssueService) UpdateStatus(ctx context.Context, actor Actor, issueID string, next domain.IssueStatus) (*domain.Issue, error) {
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(next)})
	}
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCanManage(ctx, actor, issue); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, issue, next)
}

// RejectIssue is the admin-only terminal rejection.
func (s *IssueService) RejectIssue(ctx context.Context, actor Actor, issueID string) (*domain.Issue, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins may reject issues")
	}
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, issue, domain.IssueStatusRejected)
}

func (s *IssueService) checkCanManage(ctx context.Context, actor Actor, issue *domain.Issue) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleStaff:
		assignment, err := s.assignments.GetByIssue(ctx, issue.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewForbidden("issue is not assigned to you")
			}
			return err
		}
		if assignment.StaffEmail != actor.Email {
			return apperrors.NewForbidden("issue is not assigned to you")
		}
		return nil
	default:
		return apperrors.NewForbidden("staff or admin role required")
	}
}

func (s *IssueService) transition(ctx context.Context, actor Actor, issue *domain.Issue, next domain.IssueStatus) (*domain.Issue, error) {
	from := issue.Status
	if !CanTransition(from, next, actor.Role) {
		return nil, apperrors.NewInvalidTransition(string(from), string(next))
	}

	updated, err := s.issues.TransitionStatus(ctx, issue.ID, from, next)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issue.ID})
		case errors.Is(err, repository.ErrConflict):
			return nil, apperrors.NewInvalidTransition(string(from), string(next))
		}
		return nil, err
	}

	message := MessageStatusChanged(next)
	if next == domain.IssueStatusRejected {
		message = MessageIssueRejected
	}
	if _, err := s.timeline.Record(ctx, updated.ID, next, message, actor); err != nil {
		s.logger.Warn("timeline append failed after status change",
			zap.String("issue_id", updated.ID),
			zap.String("status", string(next)),
			zap.Error(err))
	}

	s.events.publishEvent(ctx, events.Event{
		Type:    events.EventIssueStatusChanged,
		IssueID: updated.ID,
		Actor:   actor.eventActor(),
		Payload: events.IssueStatusChangedPayload{OldStatus: from, NewStatus: next},
	})
	return updated, nil
}

func (s *IssueService) getIssue(ctx context.Context, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		}
		return nil, err
	}
	return issue, nil
}

var allowedTransitions = map[domain.IssueStatus][]domain.IssueStatus{
	domain.IssueStatusPending:    {domain.IssueStatusInProgress},
	domain.IssueStatusInProgress: {domain.IssueStatusWorking},
	domain.IssueStatusWorking:    {domain.IssueStatusResolved},
	domain.IssueStatusResolved:   {domain.IssueStatusClosed},
	domain.IssueStatusClosed:     {},
	domain.IssueStatusRejected:   {},
}

var rejectableStatuses = map[domain.IssueStatus]bool{
	domain.IssueStatusPending:    true,
	domain.IssueStatusInProgress: true,
}

// CanTransition reports whether role may move an issue from current to next.
func CanTransition(current, next domain.IssueStatus, role domain.Role) bool {
	if next == domain.IssueStatusRejected {
		return role == domain.RoleAdmin && rejectableStatuses[current]
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
