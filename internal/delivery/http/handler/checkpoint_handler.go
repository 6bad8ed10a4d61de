package handler

import (
	"errors"
	"strconv"

	"regcrawl/internal/checkpoint"
	"regcrawl/internal/delivery/http/dto"
	"regcrawl/internal/delivery/http/middleware"
	"regcrawl/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type CheckpointHandler struct {
	store *checkpoint.PostgresStore
}

func NewCheckpointHandler(store *checkpoint.PostgresStore) *CheckpointHandler {
	return &CheckpointHandler{store: store}
}

func (h *CheckpointHandler) List(c fiber.Ctx) error {
	f := checkpoint.ListFilter{
		CrawlerType: c.Query("type"),
		Status:      c.Query("status"),
		Limit:       queryInt(c, "limit", 0),
		Offset:      queryInt(c, "offset", 0),
	}

	items, err := h.store.List(c.Context(), f)
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewCheckpointListResponse(items))
}

func (h *CheckpointHandler) Get(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid checkpoint id", nil, err)
	}

	p, err := h.store.Get(c.Context(), id)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return middleware.NewAppError(fiber.StatusNotFound, "checkpoint not found", nil, nil)
	}
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewCheckpointResponse(p))
}

func queryInt(c fiber.Ctx, key string, def int) int {
	s := c.Query(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
