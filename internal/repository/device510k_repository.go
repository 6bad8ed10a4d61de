package repository

import (
	"context"
	"log"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresDevice510KRepository stores FDA 510(k) clearances keyed by K-number.
// It implements both crawler.DuplicateChecker and crawler.BatchWriter for the
// 510(k) crawl job.
type PostgresDevice510KRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresDevice510KRepository(db database.DB, logger *log.Logger) *PostgresDevice510KRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresDevice510KRepository{db: db, logger: logger}
}

func (r *PostgresDevice510KRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	return existsByKey(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM device_510k WHERE k_number = $1)`, naturalKey)
}

func (r *PostgresDevice510KRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.Device510K)
		if !ok {
			r.logger.Printf("repo 510k | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO device_510k
				(k_number, device_name, applicant, trade_name, device_class,
				 country_code, date_received, data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (k_number) DO NOTHING`,
			rec.KNumber, rec.DeviceName, rec.Applicant, rec.TradeName, rec.DeviceClass,
			rec.CountryCode, rec.DateReceived, rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo 510k | insert k_number=%s err=%v", rec.KNumber, err)
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

	// Every record erroring means the backend itself is down; surface it so
	// the controller's whole-batch retry kicks in.
	if errCount == len(batch) && lastErr != nil {
		return crawler.BatchOutcome{}, lastErr
	}
	return out, nil
}

func existsByKey(ctx context.Context, db database.DB, query string, args ...any) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
