package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Issues         *handlers.IssuesHandler
	Staff          *handlers.StaffHandler
	Admin          *handlers.AdminHandler
	Payments       *handlers.PaymentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/webhooks/payment", cfg.Payments.Webhook)

	issues := app.Group("/issues")
	issues.Get("", cfg.Issues.List)
	issues.Get("/:id", cfg.Issues.Get)
	issues.Get("/:id/timeline", cfg.Issues.Timeline)
	issues.Post("", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Issues.Create)
	issues.Post("/:id/upvote", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Issues.Upvote)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireIdentity())
	users.Post("", cfg.Users.Register)
	users.Get("/me", cfg.Users.Me)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleStaff, domain.RoleAdmin))
	staff.Get("/issues", auth.RequireRole(domain.RoleStaff), cfg.Staff.AssignedIssues)
	staff.Patch("/status", cfg.Staff.UpdateStatus)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/assign", cfg.Admin.Assign)
	admin.Patch("/reject/:id", cfg.Admin.Reject)
	admin.Patch("/users/:email/role", cfg.Admin.SetRole)
	admin.Patch("/users/:email/block", cfg.Admin.SetBlocked)

	payments := app.Group("/payments", cfg.AuthMiddleware.Handle, auth.RequireRole())
	payments.Post("/boost-intent", cfg.Payments.BoostIntent)
	payments.Post("/boost-confirm", cfg.Payments.BoostConfirm)
	payments.Post("/subscribe-intent", cfg.Payments.SubscribeIntent)
	payments.Post("/subscribe-confirm", cfg.Payments.SubscribeConfirm)
	payments.Get("/my", cfg.Payments.Mine)
	payments.Get("/all", auth.RequireRole(domain.RoleAdmin), cfg.Payments.All)
}
