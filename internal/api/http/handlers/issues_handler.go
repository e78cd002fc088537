package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
)

// IssuesHandler exposes public and citizen issue endpoints.
type IssuesHandler struct {
	issues   *service.IssueService
	timeline *service.TimelineService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issues *service.IssueService, timeline *service.TimelineService) *IssuesHandler {
	return &IssuesHandler{issues: issues, timeline: timeline}
}

// List GET /issues.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	page, err := h.issues.ListIssues(c.UserContext(), service.IssueListFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 10),
	})
	if err != nil {
		return err
	}
	items := make([]dto.IssueResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewIssueResponse(&page.Items[i]))
	}
	return c.JSON(dto.IssueListResponse{Data: items, Total: page.Total, Page: page.Page, Limit: page.Limit})
}

// Get GET /issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	detail, err := h.issues.GetIssue(c.UserContext(), param(c, "id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IssueDetailResponse{
		IssueResponse: dto.NewIssueResponse(detail.Issue),
		Timeline:      dto.NewTimelineResponse(detail.Timeline),
	}})
}

// Timeline GET /issues/:id/timeline.
func (h *IssuesHandler) Timeline(c *fiber.Ctx) error {
	entries, err := h.timeline.ListForIssue(c.UserContext(), param(c, "id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTimelineResponse(entries)})
}

// Create POST /issues.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.CreateIssue(c.UserContext(), actor, service.IssueCreateInput{
		Title:       req.Title,
		Location:    req.Location,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// Upvote POST /issues/:id/upvote.
func (h *IssuesHandler) Upvote(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	issue, err := h.issues.Upvote(c.UserContext(), actor, param(c, "id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}
