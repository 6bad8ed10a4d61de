package repository

import (
	"context"
	"log"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresDeviceRegistrationRepository stores establishment registrations
// keyed by registration number.
type PostgresDeviceRegistrationRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresDeviceRegistrationRepository(db database.DB, logger *log.Logger) *PostgresDeviceRegistrationRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresDeviceRegistrationRepository{db: db, logger: logger}
}

func (r *PostgresDeviceRegistrationRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	return existsByKey(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM device_registrations WHERE registration_number = $1)`, naturalKey)
}

func (r *PostgresDeviceRegistrationRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.DeviceRegistration)
		if !ok {
			r.logger.Printf("repo registration | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO device_registrations
				(registration_number, fei_number, establishment_name, proprietary_names,
				 owner_operator, city, state, country_code, data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (registration_number) DO NOTHING`,
			rec.RegistrationNumber, rec.FEINumber, rec.EstablishmentName, rec.ProprietaryNames,
			rec.OwnerOperator, rec.City, rec.State, rec.CountryCode, rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo registration | insert registration_number=%s err=%v", rec.RegistrationNumber, err)
			out.Failed++
			errCount++
			lastErr = err
			continue
		}
		if affected == 0 {
			out.Duplicates++
			continue
		}
		out.Saved++
	}

	if errCount == len(batch) && lastErr != nil {
		return crawler.BatchOutcome{}, lastErr
	}
	return out, nil
}
