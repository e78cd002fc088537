package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// StaffHandler exposes the staff work queue.
type StaffHandler struct {
	issues      *service.IssueService
	assignments *service.AssignmentService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(issues *service.IssueService, assignments *service.AssignmentService) *StaffHandler {
	return &StaffHandler{issues: issues, assignments: assignments}
}

// AssignedIssues GET /staff/issues.
func (h *StaffHandler) AssignedIssues(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	items, err := h.assignments.ListAssignedIssues(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAssignedIssuesResponse(items)})
}

// UpdateStatus PATCH /staff/status.
func (h *StaffHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.IssueID == "" || req.Status == "" {
		return apperrors.NewValidationError("issueId and status are required", nil)
	}
	issue, err := h.issues.UpdateStatus(c.UserContext(), actor, req.IssueID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}
