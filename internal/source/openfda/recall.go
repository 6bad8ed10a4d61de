package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"regcrawl/internal/crawler"
	"regcrawl/internal/records"
)

// DeviceRecallPageCap is the largest page the recall endpoint serves
// reliably.
const DeviceRecallPageCap = 100

const DeviceRecallType = "fda_recall"

const deviceRecallEndpoint = "/device/recall.json"

// DeviceRecall crawls FDA device recall (enforcement) records.
type DeviceRecall struct {
	client *Client
	logger *log.Logger
}

func NewDeviceRecall(client *Client, logger *log.Logger) *DeviceRecall {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceRecall{client: client, logger: logger}
}

func (s *DeviceRecall) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	return s.client.fetchPage(ctx, deviceRecallEndpoint, "event_date_initiated", spec, offset, limit)
}

type deviceRecallWire struct {
	RecallNumber       string `json:"product_res_number"`
	ResEventNumber     string `json:"res_event_number"`
	ProductCode        string `json:"product_code"`
	RecallingFirm      string `json:"recalling_firm"`
	ProductDescription string `json:"product_description"`
	Reason             string `json:"reason_for_recall"`
	RecallStatus       string `json:"recall_status"`
	EventDateInitiated string `json:"event_date_initiated"`
}

func (s *DeviceRecall) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	msg, err := rawJSON(raw)
	if err != nil {
		return crawler.NormalizedRecord{}, err
	}
	var w deviceRecallWire
	if err := json.Unmarshal(msg, &w); err != nil {
		return crawler.NormalizedRecord{}, fmt.Errorf("recall record: %w", err)
	}
	rec := records.DeviceRecall{
		RecallNumber:   w.RecallNumber,
		ResEventNumber: w.ResEventNumber,
		ProductCode:    w.ProductCode,
		RecallingFirm:  w.RecallingFirm,
		ProductDesc:    w.ProductDescription,
		Reason:         w.Reason,
		RecallStatus:   w.RecallStatus,
		EventDateInit:  parseDate(w.EventDateInitiated),
		DataSource:     "FDA_RECALL",
		CrawlTime:      time.Now(),
	}
	return crawler.NormalizedRecord{NaturalKey: rec.Key(), Payload: rec}, nil
}

func DeviceRecallRoles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "brand_name", Query: func(kw string) string { return "openfda.brand_name:" + kw }},
		{Name: "recalling_firm", Query: func(kw string) string { return "recalling_firm:" + kw }},
	}
}

const DeviceRecallDefaultQuery = "product_description:medical"
