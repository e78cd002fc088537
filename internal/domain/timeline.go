package domain

import "time"

// TimelineEntry is an immutable audit record for an issue.
type TimelineEntry struct {
	ID        string
	IssueID   string
	Sequence  int64
	Status    IssueStatus
	Message   string
	UpdatedBy string
	Role      Role
	CreatedAt time.Time
}
