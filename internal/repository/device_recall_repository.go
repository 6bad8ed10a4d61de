package repository

import (
	"context"
	"log"
	"strings"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresDeviceRecallRepository stores device recalls keyed by the composite
// (recall_number, res_event_number).
type PostgresDeviceRecallRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresDeviceRecallRepository(db database.DB, logger *log.Logger) *PostgresDeviceRecallRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresDeviceRecallRepository{db: db, logger: logger}
}

func (r *PostgresDeviceRecallRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	recallNo, resNo, _ := strings.Cut(naturalKey, "|")
	return existsByKey(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM device_recalls WHERE recall_number = $1 AND res_event_number = $2)`,
		recallNo, resNo,
	)
}

func (r *PostgresDeviceRecallRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.DeviceRecall)
		if !ok {
			r.logger.Printf("repo recall | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO device_recalls
				(recall_number, res_event_number, product_code, recalling_firm,
				 product_desc, reason, recall_status, event_date_init, data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (recall_number, res_event_number) DO NOTHING`,
			rec.RecallNumber, rec.ResEventNumber, rec.ProductCode, rec.RecallingFirm,
			rec.ProductDesc, rec.Reason, rec.RecallStatus, rec.EventDateInit, rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo recall | insert recall_number=%s err=%v", rec.RecallNumber, err)
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
