package dto

// CrawlRequest triggers a combined run across all registered crawler types.
// Omitted keywords fall back to the configured keyword file.
type CrawlRequest struct {
	Keywords   []string `json:"keywords"`
	DateFrom   string   `json:"date_from"`
	DateTo     string   `json:"date_to"`
	MaxRecords *int     `json:"max_records"`
	BatchSize  *int     `json:"batch_size"`
	MaxPages   *int     `json:"max_pages"`
}

type CrawlAcceptedResponse struct {
	RunID    string   `json:"run_id"`
	Types    []string `json:"types"`
	Keywords int      `json:"keywords"`
}
