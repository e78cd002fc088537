package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string `json:"title"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// UpdateStatusRequest payload for PATCH /staff/status.
type UpdateStatusRequest struct {
	IssueID string             `json:"issueId"`
	Status  domain.IssueStatus `json:"status"`
}

// AssignIssueRequest payload for POST /admin/assign.
type AssignIssueRequest struct {
	IssueID    string `json:"issueId"`
	StaffEmail string `json:"staffEmail"`
}

// IssueResponse renders an issue.
type IssueResponse struct {
	ID            string               `json:"id"`
	ReporterEmail string               `json:"reporterEmail"`
	Title         string               `json:"title"`
	Location      string               `json:"location"`
	Category      string               `json:"category"`
	Description   string               `json:"description"`
	Status        domain.IssueStatus   `json:"status"`
	Priority      domain.IssuePriority `json:"priority"`
	UpvoteCount   int                  `json:"upvoteCount"`
	Upvoters      []string             `json:"upvoters"`
	BoostPrice    int64                `json:"boostPrice"`
	IsAssigned    bool                 `json:"isAssigned"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	BoostedAt     *time.Time           `json:"boostedAt,omitempty"`
}

// IssueDetailResponse renders an issue with its timeline.
type IssueDetailResponse struct {
	IssueResponse
	Timeline []TimelineEntryResponse `json:"timeline"`
}

// IssueListResponse renders one page of issues.
type IssueListResponse struct {
	Data  []IssueResponse `json:"data"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// TimelineEntryResponse renders one audit entry.
type TimelineEntryResponse struct {
	ID        string             `json:"id"`
	Status    domain.IssueStatus `json:"status"`
	Message   string             `json:"message"`
	UpdatedBy string             `json:"updatedBy"`
	Role      domain.Role        `json:"role"`
	CreatedAt time.Time          `json:"createdAt"`
}

// AssignmentResponse renders an assignment.
type AssignmentResponse struct {
	ID         string    `json:"id"`
	IssueID    string    `json:"issueId"`
	StaffEmail string    `json:"staffEmail"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

// AssignedIssueResponse renders an issue in a staff member's queue.
type AssignedIssueResponse struct {
	IssueID    string               `json:"issueId"`
	Title      string               `json:"title"`
	Location   string               `json:"location"`
	Category   string               `json:"category"`
	Status     domain.IssueStatus   `json:"status"`
	Priority   domain.IssuePriority `json:"priority"`
	AssignedBy string               `json:"assignedBy"`
	AssignedAt time.Time            `json:"assignedAt"`
}

// NewIssueResponse maps a domain issue.
func NewIssueResponse(issue *domain.Issue) IssueResponse {
	upvoters := issue.Upvoters
	if upvoters == nil {
		upvoters = []string{}
	}
	return IssueResponse{
		ID:            issue.ID,
		ReporterEmail: issue.ReporterEmail,
		Title:         issue.Title,
		Location:      issue.Location,
		Category:      issue.Category,
		Description:   issue.Description,
		Status:        issue.Status,
		Priority:      issue.Priority,
		UpvoteCount:   issue.UpvoteCount,
		Upvoters:      upvoters,
		BoostPrice:    issue.BoostPrice,
		IsAssigned:    issue.IsAssigned,
		CreatedAt:     issue.CreatedAt,
		UpdatedAt:     issue.UpdatedAt,
		BoostedAt:     issue.BoostedAt,
	}
}

// NewTimelineResponse maps timeline entries, preserving order.
func NewTimelineResponse(entries []domain.TimelineEntry) []TimelineEntryResponse {
	out := make([]TimelineEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TimelineEntryResponse{
			ID:        e.ID,
			Status:    e.Status,
			Message:   e.Message,
			UpdatedBy: e.UpdatedBy,
			Role:      e.Role,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// NewAssignmentResponse maps an assignment.
func NewAssignmentResponse(a *domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		IssueID:    a.IssueID,
		StaffEmail: a.StaffEmail,
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
	}
}

// NewAssignedIssuesResponse maps a staff queue.
func NewAssignedIssuesResponse(items []domain.AssignedIssue) []AssignedIssueResponse {
	out := make([]AssignedIssueResponse, 0, len(items))
	for _, item := range items {
		out = append(out, AssignedIssueResponse{
			IssueID:    item.Assignment.IssueID,
			Title:      item.Title,
			Location:   item.Location,
			Category:   item.Category,
			Status:     item.Status,
			Priority:   item.Priority,
			AssignedBy: item.Assignment.AssignedBy,
			AssignedAt: item.Assignment.AssignedAt,
		})
	}
	return out
}
