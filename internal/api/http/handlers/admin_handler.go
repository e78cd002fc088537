package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// AdminHandler exposes administrative endpoints.
type AdminHandler struct {
	issues      *service.IssueService
	assignments *service.AssignmentService
	users       *service.UserService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(issues *service.IssueService, assignments *service.AssignmentService, users *service.UserService) *AdminHandler {
	return &AdminHandler{issues: issues, assignments: assignments, users: users}
}

// Assign POST /admin/assign.
func (h *AdminHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignIssueRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	assignment, err := h.assignments.AssignIssue(c.UserContext(), actor, req.IssueID, req.StaffEmail)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewAssignmentResponse(assignment)})
}

// Reject PATCH /admin/reject/:id.
func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	issue, err := h.issues.RejectIssue(c.UserContext(), actor, param(c, "id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// SetRole PATCH /admin/users/:email/role.
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	var req dto.SetRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.SetRole(c.UserContext(), actor, email, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// SetBlocked PATCH /admin/users/:email/block.
func (h *AdminHandler) SetBlocked(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	var req dto.SetBlockedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Blocked == nil {
		return apperrors.NewValidationError("blocked is required", nil)
	}
	user, err := h.users.SetBlocked(c.UserContext(), actor, email, *req.Blocked)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

func emailParam(c *fiber.Ctx) (string, error) {
	email, err := url.PathUnescape(param(c, "email"))
	if err != nil || email == "" {
		return "", apperrors.NewValidationError("invalid email", nil)
	}
	return email, nil
}
