package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/memo-service/internal/api/http/handlers"
	"github.com/spec-kit/memo-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Memos          *handlers.MemosHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Snapshot)
	}

	if cfg.Memos == nil {
		return
	}
	memos := app.Group("/memos", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	memos.Post("/", cfg.Memos.CreateMemo)
	memos.Get("/", cfg.Memos.ListMemos)
	memos.Get("/:id", cfg.Memos.GetMemo)
	memos.Put("/:id", cfg.Memos.UpdateMemo)
	memos.Delete("/:id", cfg.Memos.DeleteMemo)
	memos.Post("/:id/send", cfg.Memos.SendMemo)
	memos.Post("/:id/minutes", cfg.Memos.AddMinute)
	memos.Get("/:id/chain", cfg.Memos.GetChain)
	memos.Post("/:id/review", cfg.Memos.MarkReviewed)
	memos.Post("/:id/archive", cfg.Memos.ArchiveMemo)
	memos.Post("/:id/forward", cfg.Memos.ForwardMemo)
}
