package openfda

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"regcrawl/internal/crawler"
	"regcrawl/internal/records"
)

// DeviceEventPageCap is the largest page the MAUDE event endpoint serves
// reliably.
const DeviceEventPageCap = 100

const DeviceEventType = "fda_event"

const deviceEventEndpoint = "/device/event.json"

// DeviceEvent crawls MAUDE adverse event reports.
type DeviceEvent struct {
	client *Client
	logger *log.Logger
}

func NewDeviceEvent(client *Client, logger *log.Logger) *DeviceEvent {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceEvent{client: client, logger: logger}
}

func (s *DeviceEvent) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	return s.client.fetchPage(ctx, deviceEventEndpoint, "date_received", spec, offset, limit)
}

type deviceEventWire struct {
	ReportNumber string   `json:"report_number"`
	EventType    string   `json:"event_type"`
	DateReceived string   `json:"date_received"`
	DateOfEvent  string   `json:"date_of_event"`
	Problems     []string `json:"product_problems"`
	Devices      []struct {
		BrandName        string `json:"brand_name"`
		GenericName      string `json:"generic_name"`
		ManufacturerName string `json:"manufacturer_d_name"`
	} `json:"device"`
}

func (s *DeviceEvent) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	msg, err := rawJSON(raw)
	if err != nil {
		return crawler.NormalizedRecord{}, err
	}
	var w deviceEventWire
	if err := json.Unmarshal(msg, &w); err != nil {
		return crawler.NormalizedRecord{}, fmt.Errorf("event record: %w", err)
	}
	rec := records.DeviceEvent{
		ReportNumber:    w.ReportNumber,
		EventType:       w.EventType,
		DateReceived:    parseDate(w.DateReceived),
		DateOfEvent:     parseDate(w.DateOfEvent),
		ProductProblems: strings.Join(w.Problems, "; "),
		DataSource:      "FDA_MAUDE",
		CrawlTime:       time.Now(),
	}
	// A MAUDE report lists one device per entry in practice; take the first.
	if len(w.Devices) > 0 {
		rec.BrandName = w.Devices[0].BrandName
		rec.GenericName = w.Devices[0].GenericName
		rec.Manufacturer = w.Devices[0].ManufacturerName
	}
	return crawler.NormalizedRecord{NaturalKey: rec.ReportNumber, Payload: rec}, nil
}

func DeviceEventRoles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "brand_name", Query: func(kw string) string { return "device.brand_name:" + kw }},
		{Name: "manufacturer", Query: func(kw string) string { return "device.manufacturer_d_name:" + kw }},
	}
}

const DeviceEventDefaultQuery = "device.generic_name:medical"
