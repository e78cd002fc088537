package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusWorking    IssueStatus = "working"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
	IssueStatusRejected   IssueStatus = "rejected"
)

// Valid reports whether the status is a known lifecycle state.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusWorking,
		IssueStatusResolved, IssueStatusClosed, IssueStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave the status.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusClosed || s == IssueStatusRejected
}

// IssuePriority enumerates issue urgency.
type IssuePriority string

const (
	IssuePriorityNormal IssuePriority = "normal"
	IssuePriorityHigh   IssuePriority = "high"
)

// Valid reports whether the priority is known.
func (p IssuePriority) Valid() bool {
	return p == IssuePriorityNormal || p == IssuePriorityHigh
}

// Rank orders priorities for listing, higher first.
func (p IssuePriority) Rank() int {
	if p == IssuePriorityHigh {
		return 1
	}
	return 0
}

// Issue is the aggregate for citizen reports.
type Issue struct {
	ID            string
	ReporterEmail string
	Title         string
	Location      string
	Category      string
	Description   string
	Status        IssueStatus
	Priority      IssuePriority
	UpvoteCount   int
	Upvoters      []string
	BoostPrice    int64
	IsAssigned    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	BoostedAt     *time.Time
}

// HasUpvoter reports whether email already upvoted the issue.
func (i *Issue) HasUpvoter(email string) bool {
	for _, voter := range i.Upvoters {
		if voter == email {
			return true
		}
	}
	return false
}
