package handler

import (
	"context"
	"time"

	"regcrawl/internal/database"
	"regcrawl/internal/infrastructure/cache"
	"regcrawl/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type HealthHandler struct {
	db    database.DB
	cache *cache.Redis
}

func NewHealthHandler(db database.DB, cache *cache.Redis) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	body := fiber.Map{"database": "up", "cache": "up"}

	if h.db == nil || h.db.Ping(ctx) != nil {
		status = fiber.StatusServiceUnavailable
		body["database"] = "down"
	}
	// The cache is best-effort; report it but never fail the check on it.
	if h.cache == nil || h.cache.Ping(ctx) != nil {
		body["cache"] = "down"
	}

	if status != fiber.StatusOK {
		return response.Error(c, status, "degraded", body)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, body)
}
