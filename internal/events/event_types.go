package events

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueUpvoted       EventType = "issue_upvoted"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueBoosted       EventType = "issue_boosted"
	EventUserSubscribed     EventType = "user_subscribed"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []EventType{
	EventIssueCreated,
	EventIssueUpvoted,
	EventIssueStatusChanged,
	EventIssueAssigned,
	EventIssueBoosted,
	EventUserSubscribed,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Location string `json:"location"`
}

// IssueUpvotedPayload payload.
type IssueUpvotedPayload struct {
	Voter string `json:"voter"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	StaffEmail string `json:"staff_email"`
}

// PaymentSettledPayload payload for boosts and subscriptions.
type PaymentSettledPayload struct {
	TransactionID string               `json:"transaction_id"`
	Amount        int64                `json:"amount"`
	Source        domain.PaymentSource `json:"source"`
}
