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

// Device510KPageCap is the largest page the 510(k) endpoint serves reliably.
const Device510KPageCap = 100

const Device510KType = "fda_510k"

const device510KEndpoint = "/device/510k.json"

// Device510K crawls FDA premarket notification clearances. Implements both
// the page fetcher and the normalizer for the controller.
type Device510K struct {
	client *Client
	logger *log.Logger
}

func NewDevice510K(client *Client, logger *log.Logger) *Device510K {
	if logger == nil {
		logger = log.Default()
	}
	return &Device510K{client: client, logger: logger}
}

func (s *Device510K) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	return s.client.fetchPage(ctx, device510KEndpoint, "date_received", spec, offset, limit)
}

type device510KWire struct {
	KNumber      string `json:"k_number"`
	DeviceName   string `json:"device_name"`
	Applicant    string `json:"applicant"`
	CountryCode  string `json:"country_code"`
	DateReceived string `json:"date_received"`
	OpenFDA      struct {
		DeviceName  string `json:"device_name"`
		DeviceClass string `json:"device_class"`
	} `json:"openfda"`
}

func (s *Device510K) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	msg, err := rawJSON(raw)
	if err != nil {
		return crawler.NormalizedRecord{}, err
	}
	var w device510KWire
	if err := json.Unmarshal(msg, &w); err != nil {
		return crawler.NormalizedRecord{}, fmt.Errorf("510k record: %w", err)
	}
	rec := records.Device510K{
		KNumber:      w.KNumber,
		DeviceName:   w.DeviceName,
		Applicant:    w.Applicant,
		TradeName:    w.OpenFDA.DeviceName,
		DeviceClass:  w.OpenFDA.DeviceClass,
		CountryCode:  w.CountryCode,
		DateReceived: parseDate(w.DateReceived),
		DataSource:   "FDA_510K",
		CrawlTime:    time.Now(),
	}
	return crawler.NormalizedRecord{NaturalKey: rec.KNumber, Payload: rec}, nil
}

// Device510KRoles lists the searchable slots a keyword fans out into for
// this endpoint.
func Device510KRoles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "device_name", Query: func(kw string) string { return "device_name:" + kw }},
		{Name: "applicant", Query: func(kw string) string { return "applicant:" + kw }},
		{Name: "trade_name", Query: func(kw string) string { return "openfda.device_name:" + kw }},
	}
}

// Device510KDefaultQuery is crawled when no keywords are supplied.
const Device510KDefaultQuery = "device_name:medical"
