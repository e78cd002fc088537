// Package memory implements the repository interfaces in process memory. It
// backs the service when no Postgres DSN is configured and in tests, and keeps
// the same conditional-update semantics as the SQL implementations.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
)

// Store holds every collection behind one lock.
type Store struct {
	mu          sync.RWMutex
	issues      map[string]*domain.Issue
	timeline    map[string][]domain.TimelineEntry
	seq         int64
	assignments []domain.Assignment
	users       map[string]*domain.User
	payments    []domain.Payment
	failures    map[string]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		issues:   make(map[string]*domain.Issue),
		timeline: make(map[string][]domain.TimelineEntry),
		users:    make(map[string]*domain.User),
		failures: make(map[string]error),
	}
}

// FailNext makes the next call of the named operation (e.g. "timeline.Append")
// return err. Used to exercise partial-failure paths.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// TimelineLen counts timeline entries across all issues.
func (s *Store) TimelineLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entries := range s.timeline {
		n += len(entries)
	}
	return n
}

func (s *Store) takeFailure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// Issues returns the issue repository view.
func (s *Store) Issues() repository.IssueRepository { return (*issueRepo)(s) }

// Timeline returns the timeline repository view.
func (s *Store) Timeline() repository.TimelineRepository { return (*timelineRepo)(s) }

// Assignments returns the assignment repository view.
func (s *Store) Assignments() repository.AssignmentRepository { return (*assignmentRepo)(s) }

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return (*userRepo)(s) }

// Payments returns the payment repository view.
func (s *Store) Payments() repository.PaymentRepository { return (*paymentRepo)(s) }

func cloneIssue(issue *domain.Issue) *domain.Issue {
	cp := *issue
	cp.Upvoters = append([]string(nil), issue.Upvoters...)
	if issue.BoostedAt != nil {
		at := *issue.BoostedAt
		cp.BoostedAt = &at
	}
	return &cp
}

type issueRepo Store

func (r *issueRepo) CreateWithQuota(_ context.Context, issue *domain.Issue, limit int) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("issues.Create"); err != nil {
		return err
	}
	if _, exists := s.issues[issue.ID]; exists {
		return repository.ErrDuplicate
	}
	if limit > 0 && s.countLocked(repository.IssueFilter{ReporterEmail: &issue.ReporterEmail}) >= limit {
		return repository.ErrQuotaExceeded
	}
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *issueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneIssue(issue), nil
}

func (r *issueRepo) List(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *issueRepo) Count(_ context.Context, filter repository.IssueFilter) (int, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(filter), nil
}

func (r *issueRepo) CountByReporter(ctx context.Context, email string) (int, error) {
	return r.Count(ctx, repository.IssueFilter{ReporterEmail: &email})
}

func (r *issueRepo) AddUpvote(_ context.Context, id, voter string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return repository.ErrNotFound
	}
	if issue.ReporterEmail == voter || issue.HasUpvoter(voter) {
		return repository.ErrConflict
	}
	issue.Upvoters = append(issue.Upvoters, voter)
	issue.UpvoteCount++
	issue.UpdatedAt = time.Now()
	return nil
}

func (r *issueRepo) TransitionStatus(_ context.Context, id string, from, to domain.IssueStatus) (*domain.Issue, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("issues.TransitionStatus"); err != nil {
		return nil, err
	}
	issue, ok := s.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if issue.Status != from {
		return nil, repository.ErrConflict
	}
	issue.Status = to
	issue.UpdatedAt = time.Now()
	return cloneIssue(issue), nil
}

func (r *issueRepo) MarkAssigned(_ context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return repository.ErrNotFound
	}
	if issue.IsAssigned {
		return repository.ErrConflict
	}
	issue.IsAssigned = true
	issue.UpdatedAt = time.Now()
	return nil
}

func (r *issueRepo) ClearAssigned(_ context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return repository.ErrNotFound
	}
	issue.IsAssigned = false
	issue.UpdatedAt = time.Now()
	return nil
}

func (r *issueRepo) Boost(_ context.Context, id string, at time.Time) (*domain.Issue, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("issues.Boost"); err != nil {
		return nil, err
	}
	issue, ok := s.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	issue.Priority = domain.IssuePriorityHigh
	issue.BoostedAt = &at
	issue.UpdatedAt = time.Now()
	return cloneIssue(issue), nil
}

func (s *Store) countLocked(filter repository.IssueFilter) int {
	return len(s.matchLocked(filter))
}

func (s *Store) matchLocked(filter repository.IssueFilter) []domain.Issue {
	var search string
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	var result []domain.Issue
	for _, issue := range s.issues {
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && issue.Category != *filter.Category {
			continue
		}
		if filter.Priority != nil && issue.Priority != *filter.Priority {
			continue
		}
		if filter.ReporterEmail != nil && issue.ReporterEmail != *filter.ReporterEmail {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(issue.Title), search) &&
			!strings.Contains(strings.ToLower(issue.Location), search) {
			continue
		}
		result = append(result, *cloneIssue(issue))
	}
	return result
}

type timelineRepo Store

func (r *timelineRepo) Append(_ context.Context, entry *domain.TimelineEntry) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("timeline.Append"); err != nil {
		return err
	}
	s.seq++
	entry.Sequence = s.seq
	s.timeline[entry.IssueID] = append(s.timeline[entry.IssueID], *entry)
	return nil
}

func (r *timelineRepo) ListByIssue(_ context.Context, issueID string) ([]domain.TimelineEntry, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TimelineEntry(nil), s.timeline[issueID]...), nil
}

type assignmentRepo Store

func (r *assignmentRepo) Create(_ context.Context, assignment *domain.Assignment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("assignments.Create"); err != nil {
		return err
	}
	s.assignments = append(s.assignments, *assignment)
	return nil
}

func (r *assignmentRepo) GetByIssue(_ context.Context, issueID string) (*domain.Assignment, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.assignments) - 1; i >= 0; i-- {
		if s.assignments[i].IssueID == issueID {
			a := s.assignments[i]
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *assignmentRepo) ListByStaff(_ context.Context, staffEmail string) ([]domain.AssignedIssue, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.AssignedIssue
	for i := len(s.assignments) - 1; i >= 0; i-- {
		a := s.assignments[i]
		if a.StaffEmail != staffEmail {
			continue
		}
		issue, ok := s.issues[a.IssueID]
		if !ok {
			continue
		}
		result = append(result, domain.AssignedIssue{
			Assignment: a,
			Title:      issue.Title,
			Location:   issue.Location,
			Category:   issue.Category,
			Status:     issue.Status,
			Priority:   issue.Priority,
		})
	}
	return result, nil
}

type userRepo Store

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return repository.ErrDuplicate
	}
	cp := *user
	s.users[user.Email] = &cp
	return nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *userRepo) Subscribe(_ context.Context, email string, at time.Time) error {
	return r.update(email, "users.Subscribe", func(u *domain.User) {
		u.IsSubscribed = true
		u.SubscribedAt = &at
	})
}

func (r *userRepo) SetRole(_ context.Context, email string, role domain.Role) error {
	return r.update(email, "users.SetRole", func(u *domain.User) { u.Role = role })
}

func (r *userRepo) SetBlocked(_ context.Context, email string, blocked bool) error {
	return r.update(email, "users.SetBlocked", func(u *domain.User) { u.Blocked = blocked })
}

func (r *userRepo) update(email, op string, apply func(*domain.User)) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(op); err != nil {
		return err
	}
	user, ok := s.users[email]
	if !ok {
		return repository.ErrNotFound
	}
	apply(user)
	user.UpdatedAt = time.Now()
	return nil
}

type paymentRepo Store

func (r *paymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("payments.Create"); err != nil {
		return err
	}
	for _, existing := range s.payments {
		if existing.TransactionID == payment.TransactionID {
			return repository.ErrDuplicate
		}
	}
	s.payments = append(s.payments, *payment)
	return nil
}

func (r *paymentRepo) GetByTransactionID(_ context.Context, transactionID string) (*domain.Payment, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.TransactionID == transactionID {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepo) ListByEmail(_ context.Context, email string) ([]domain.Payment, error) {
	return r.list(func(p domain.Payment) bool { return p.Email == email }), nil
}

func (r *paymentRepo) ListAll(_ context.Context) ([]domain.Payment, error) {
	return r.list(func(domain.Payment) bool { return true }), nil
}

func (r *paymentRepo) list(keep func(domain.Payment) bool) []domain.Payment {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Payment
	for i := len(s.payments) - 1; i >= 0; i-- {
		if keep(s.payments[i]) {
			result = append(result, s.payments[i])
		}
	}
	return result
}
