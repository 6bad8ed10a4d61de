// Package records holds the canonical typed shapes the normalizers produce,
// one per regulatory source.
package records

import (
	"strings"
	"time"
)

type Device510K struct {
	KNumber      string
	DeviceName   string
	Applicant    string
	TradeName    string
	DeviceClass  string
	CountryCode  string
	DateReceived *time.Time
	DataSource   string
	CrawlTime    time.Time
}

type DeviceEvent struct {
	ReportNumber    string
	EventType       string
	BrandName       string
	GenericName     string
	Manufacturer    string
	DateReceived    *time.Time
	DateOfEvent     *time.Time
	ProductProblems string
	DataSource      string
	CrawlTime       time.Time
}

type DeviceRecall struct {
	RecallNumber   string
	ResEventNumber string
	ProductCode    string
	RecallingFirm  string
	ProductDesc    string
	Reason         string
	RecallStatus   string
	EventDateInit  *time.Time
	DataSource     string
	CrawlTime      time.Time
}

// Key builds the composite dedup key for a recall: openFDA recall rows are
// only unique on recall number plus RES event number jointly. An empty
// recall number yields no key, so the record is always attempted for insert.
func (r DeviceRecall) Key() string {
	recallNo := strings.TrimSpace(r.RecallNumber)
	if recallNo == "" {
		return ""
	}
	return recallNo + "|" + strings.TrimSpace(r.ResEventNumber)
}

type DeviceRegistration struct {
	RegistrationNumber string
	FEINumber          string
	EstablishmentName  string
	ProprietaryNames   string
	OwnerOperator      string
	City               string
	State              string
	CountryCode        string
	DataSource         string
	CrawlTime          time.Time
}

type GuidanceDocument struct {
	Title        string
	DocumentURL  string
	Topic        string
	GuidanceType string
	Status       string
	IssueDate    *time.Time
	DataSource   string
	CrawlTime    time.Time
}

type CustomsRuling struct {
	RulingNumber string
	RulingDate   *time.Time
	Title        string
	Category     string
	TariffNumber string
	RulingURL    string
	DataSource   string
	CrawlTime    time.Time
}
