package ws

import (
	"encoding/json"
	"time"

	"regcrawl/internal/crawler"
)

// ProgressEvent is the wire shape pushed to subscribers after every
// checkpointed page.
type ProgressEvent struct {
	Type           string `json:"type"`
	CrawlerType    string `json:"crawler_type"`
	SearchTerm     string `json:"search_term"`
	Offset         int    `json:"offset"`
	TotalFetched   int    `json:"total_fetched"`
	TotalAvailable *int   `json:"total_available,omitempty"`
	Saved          int    `json:"saved"`
	Duplicates     int    `json:"duplicates"`
	Failed         int    `json:"failed"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}

// ProgressNotifier adapts the hub to the controller's observer callback.
type ProgressNotifier struct {
	hub *Hub
}

func NewProgressNotifier(hub *Hub) *ProgressNotifier {
	return &ProgressNotifier{hub: hub}
}

func (n *ProgressNotifier) PageCompleted(id crawler.Identity, p crawler.Progress, out crawler.BatchOutcome) {
	if n == nil || n.hub == nil {
		return
	}
	evt := ProgressEvent{
		Type:           "crawl_progress",
		CrawlerType:    id.CrawlerType,
		SearchTerm:     id.SearchTerm,
		Offset:         p.CurrentOffset,
		TotalFetched:   p.TotalFetched,
		TotalAvailable: p.TotalAvailable,
		Saved:          out.Saved,
		Duplicates:     out.Duplicates,
		Failed:         out.Failed,
		Status:         string(p.Status),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	n.hub.Broadcast(b)
}
