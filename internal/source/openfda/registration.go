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

// DeviceRegistrationPageCap is the largest page the registration listing
// endpoint serves; unlike the other device endpoints it accepts 1000.
const DeviceRegistrationPageCap = 1000

const DeviceRegistrationType = "fda_registration"

const deviceRegistrationEndpoint = "/device/registrationlisting.json"

// DeviceRegistration crawls FDA establishment registration listings.
type DeviceRegistration struct {
	client *Client
	logger *log.Logger
}

func NewDeviceRegistration(client *Client, logger *log.Logger) *DeviceRegistration {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceRegistration{client: client, logger: logger}
}

func (s *DeviceRegistration) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	// The registration listing carries no crawlable date field; date ranges
	// on the spec are ignored for this source.
	return s.client.fetchPage(ctx, deviceRegistrationEndpoint, "", spec, offset, limit)
}

type deviceRegistrationWire struct {
	ProprietaryName []string `json:"proprietary_name"`
	Registration    struct {
		RegistrationNumber string `json:"registration_number"`
		FEINumber          string `json:"fei_number"`
		Name               string `json:"name"`
		City               string `json:"city"`
		StateCode          string `json:"state_code"`
		ISOCountryCode     string `json:"iso_country_code"`
		OwnerOperator      struct {
			FirmName string `json:"firm_name"`
		} `json:"owner_operator"`
	} `json:"registration"`
}

func (s *DeviceRegistration) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	msg, err := rawJSON(raw)
	if err != nil {
		return crawler.NormalizedRecord{}, err
	}
	var w deviceRegistrationWire
	if err := json.Unmarshal(msg, &w); err != nil {
		return crawler.NormalizedRecord{}, fmt.Errorf("registration record: %w", err)
	}
	rec := records.DeviceRegistration{
		RegistrationNumber: w.Registration.RegistrationNumber,
		FEINumber:          w.Registration.FEINumber,
		EstablishmentName:  w.Registration.Name,
		ProprietaryNames:   strings.Join(w.ProprietaryName, "; "),
		OwnerOperator:      w.Registration.OwnerOperator.FirmName,
		City:               w.Registration.City,
		State:              w.Registration.StateCode,
		CountryCode:        w.Registration.ISOCountryCode,
		DataSource:         "FDA_REGISTRATION",
		CrawlTime:          time.Now(),
	}
	return crawler.NormalizedRecord{NaturalKey: rec.RegistrationNumber, Payload: rec}, nil
}

func DeviceRegistrationRoles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "establishment_name", Query: func(kw string) string { return "registration.name:" + kw }},
		{Name: "proprietary_name", Query: func(kw string) string { return "proprietary_name:" + kw }},
		{Name: "device_name", Query: func(kw string) string { return "products.openfda.device_name:" + kw }},
	}
}

const DeviceRegistrationDefaultQuery = "products.openfda.device_name:medical"
