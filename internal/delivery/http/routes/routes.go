package routes

import (
	"regcrawl/internal/delivery/http/handler"
	"regcrawl/internal/delivery/http/middleware"
	"regcrawl/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health      *handler.HealthHandler
	Crawl       *handler.CrawlHandler
	Checkpoints *handler.CheckpointHandler
	Auth        *middleware.AuthMiddleware
	WS          *ws.Handler
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	app.Get("/health", r.Health.Check)
	app.Get("/ws/progress", r.WS.HandleProgressWS)

	v1 := app.Group("/api/v1")
	v1.Post("/crawl", r.Crawl.Trigger, r.Auth.Middleware())
	v1.Get("/checkpoints", r.Checkpoints.List)
	v1.Get("/checkpoints/:id", r.Checkpoints.Get)
}
