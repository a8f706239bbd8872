package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mukund1606/taxmann-project/internal/api/http/handlers"
	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Session        *handlers.SessionHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	SignInLimiter  *auth.SignInLimiter
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Session.Register)
	authGroup.Post("/sign-in", cfg.SignInLimiter.Handle, cfg.Session.SignIn)
	authGroup.Post("/sign-out", cfg.Session.SignOut)
	authGroup.Get("/session", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Session.Session)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Post("/category-suggestion", cfg.Tickets.SuggestCategory)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.Reply)
	tickets.Patch("/:id/status", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.ChangeStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.ChangePriority)
	tickets.Get("/:id/history", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.History)
}
