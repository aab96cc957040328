package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/rumi-monitor/internal/api/http/handlers"
	"github.com/spec-kit/rumi-monitor/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Monitor        *handlers.MonitorHandler
	History        *handlers.HistoryHandler
	Preferences    *handlers.PreferencesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireOperator())
	protected.Get("/views", cfg.Monitor.Views)

	monitor := protected.Group("/monitor")
	monitor.Post("/start", cfg.Monitor.Start)
	monitor.Post("/stop", cfg.Monitor.Stop)
	monitor.Get("/status", cfg.Monitor.Status)
	monitor.Put("/views", cfg.Monitor.SelectViews)
	monitor.Delete("/views", cfg.Monitor.ClearViews)
	monitor.Put("/interval", cfg.Monitor.SetInterval)
	monitor.Put("/dry-run", cfg.Monitor.SetDryRun)
	monitor.Put("/verbose", cfg.Monitor.SetVerbose)
	monitor.Post("/test", cfg.Monitor.TestTickets)
	monitor.Delete("/processed", cfg.Monitor.ResetProcessed)

	protected.Get("/history", cfg.History.List)
	protected.Delete("/history", cfg.History.Clear)
	protected.Get("/history/export", cfg.History.Export)

	protected.Get("/preferences", cfg.Preferences.Get)
	protected.Put("/preferences", cfg.Preferences.Update)
}
