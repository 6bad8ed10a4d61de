package dto

import (
	"time"

	"regcrawl/internal/crawler"
)

type CheckpointResponse struct {
	ID             int64     `json:"id"`
	CrawlerType    string    `json:"crawler_type"`
	SearchTerm     string    `json:"search_term"`
	DateFrom       string    `json:"date_from,omitempty"`
	DateTo         string    `json:"date_to,omitempty"`
	CurrentOffset  int       `json:"current_offset"`
	TotalFetched   int       `json:"total_fetched"`
	TotalAvailable *int      `json:"total_available,omitempty"`
	BatchSize      int       `json:"batch_size"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
	CreatedTime    time.Time `json:"created_time"`
}

func NewCheckpointResponse(p crawler.Progress) CheckpointResponse {
	return CheckpointResponse{
		ID:             p.ID,
		CrawlerType:    p.Identity.CrawlerType,
		SearchTerm:     p.Identity.SearchTerm,
		DateFrom:       p.Identity.DateFrom,
		DateTo:         p.Identity.DateTo,
		CurrentOffset:  p.CurrentOffset,
		TotalFetched:   p.TotalFetched,
		TotalAvailable: p.TotalAvailable,
		BatchSize:      p.BatchSize,
		Status:         string(p.Status),
		ErrorMessage:   p.ErrorMessage,
		LastUpdated:    p.LastUpdated,
		CreatedTime:    p.CreatedTime,
	}
}

func NewCheckpointListResponse(ps []crawler.Progress) []CheckpointResponse {
	out := make([]CheckpointResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewCheckpointResponse(p))
	}
	return out
}
