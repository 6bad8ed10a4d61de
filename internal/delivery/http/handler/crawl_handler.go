package handler

import (
	"context"
	"log"
	"sync/atomic"

	"regcrawl/internal/crawler"
	"regcrawl/internal/delivery/http/dto"
	"regcrawl/internal/delivery/http/middleware"
	"regcrawl/internal/keywords"
	"regcrawl/internal/orchestrator"
	"regcrawl/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type CrawlHandler struct {
	orch         *orchestrator.Orchestrator
	keywordsPath string
	logger       *log.Logger

	// running serializes combined runs; the upstream sources are shared
	// and a second concurrent run would double every politeness delay.
	running atomic.Bool
}

func NewCrawlHandler(orch *orchestrator.Orchestrator, keywordsPath string, logger *log.Logger) *CrawlHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &CrawlHandler{orch: orch, keywordsPath: keywordsPath, logger: logger}
}

// Trigger starts a combined crawl in the background and returns immediately.
// Progress is observable on the websocket feed and the checkpoints API.
func (h *CrawlHandler) Trigger(c fiber.Ctx) error {
	var req dto.CrawlRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "invalid request body", nil, err)
		}
	}

	base := crawler.JobSpec{
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		MaxRecords: -1,
		BatchSize:  50,
	}
	if req.MaxRecords != nil {
		base.MaxRecords = *req.MaxRecords
	}
	if req.BatchSize != nil && *req.BatchSize > 0 {
		base.BatchSize = *req.BatchSize
	}
	if req.MaxPages != nil && *req.MaxPages > 0 {
		base.MaxPages = *req.MaxPages
	}

	kws := req.Keywords
	if len(kws) == 0 {
		kws = keywords.Load(h.keywordsPath, h.logger)
	}

	if !h.running.CompareAndSwap(false, true) {
		return middleware.NewAppError(fiber.StatusConflict, "a crawl run is already in progress", nil, nil)
	}

	runID := uuid.NewString()
	h.logger.Printf("crawl run start | run_id=%s keywords=%d types=%d", runID, len(kws), len(h.orch.Types()))

	go func() {
		defer h.running.Store(false)
		results := h.orch.RunAll(context.Background(), kws, base)
		for typ, res := range results {
			h.logger.Printf("crawl run done | run_id=%s type=%s saved=%d skipped=%d errors=%d timed_out=%t",
				runID, typ, res.Saved, res.Skipped, len(res.Errors), res.TimedOut)
		}
	}()

	return response.Success(c, fiber.StatusAccepted, response.MessageAccepted, dto.CrawlAcceptedResponse{
		RunID:    runID,
		Types:    h.orch.Types(),
		Keywords: len(kws),
	})
}
