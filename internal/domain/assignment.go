package domain

import "time"

// Assignment binds an issue to a staff member.
type Assignment struct {
	ID         string
	IssueID    string
	StaffEmail string
	AssignedBy string
	AssignedAt time.Time
}

// AssignedIssue joins an assignment with the current issue state.
type AssignedIssue struct {
	Assignment Assignment
	Title      string
	Location   string
	Category   string
	Status     IssueStatus
	Priority   IssuePriority
}
