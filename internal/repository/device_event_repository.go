package repository

import (
	"context"
	"log"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresDeviceEventRepository stores MAUDE adverse-event reports keyed by
// report number.
type PostgresDeviceEventRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresDeviceEventRepository(db database.DB, logger *log.Logger) *PostgresDeviceEventRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresDeviceEventRepository{db: db, logger: logger}
}

func (r *PostgresDeviceEventRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	return existsByKey(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM device_events WHERE report_number = $1)`, naturalKey)
}

func (r *PostgresDeviceEventRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.DeviceEvent)
		if !ok {
			r.logger.Printf("repo event | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO device_events
				(report_number, event_type, brand_name, generic_name, manufacturer,
				 date_received, date_of_event, product_problems, data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (report_number) DO NOTHING`,
			rec.ReportNumber, rec.EventType, rec.BrandName, rec.GenericName, rec.Manufacturer,
			rec.DateReceived, rec.DateOfEvent, rec.ProductProblems, rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo event | insert report_number=%s err=%v", rec.ReportNumber, err)
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
