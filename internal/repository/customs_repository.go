package repository

import (
	"context"
	"log"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresCustomsRepository stores CBP CROSS rulings keyed by ruling number.
type PostgresCustomsRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresCustomsRepository(db database.DB, logger *log.Logger) *PostgresCustomsRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresCustomsRepository{db: db, logger: logger}
}

func (r *PostgresCustomsRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	return existsByKey(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM customs_rulings WHERE ruling_number = $1)`, naturalKey)
}

func (r *PostgresCustomsRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.CustomsRuling)
		if !ok {
			r.logger.Printf("repo customs | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO customs_rulings
				(ruling_number, ruling_date, title, category, tariff_number,
				 ruling_url, data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ruling_number) DO NOTHING`,
			rec.RulingNumber, rec.RulingDate, rec.Title, rec.Category, rec.TariffNumber,
			rec.RulingURL, rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo customs | insert ruling_number=%s err=%v", rec.RulingNumber, err)
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
