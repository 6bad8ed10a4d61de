package repository

import (
	"context"
	"log"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"
	"regcrawl/internal/records"
)

// PostgresGuidanceRepository stores FDA guidance documents keyed by document
// URL; guidance pages carry no stable numeric identifier.
type PostgresGuidanceRepository struct {
	db     database.DB
	logger *log.Logger
}

func NewPostgresGuidanceRepository(db database.DB, logger *log.Logger) *PostgresGuidanceRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresGuidanceRepository{db: db, logger: logger}
}

func (r *PostgresGuidanceRepository) Exists(ctx context.Context, naturalKey string) (bool, error) {
	return existsByKey(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM guidance_documents WHERE document_url = $1)`, naturalKey)
}

func (r *PostgresGuidanceRepository) WriteAll(ctx context.Context, batch []crawler.NormalizedRecord) (crawler.BatchOutcome, error) {
	var out crawler.BatchOutcome
	var lastErr error
	errCount := 0

	for _, nr := range batch {
		rec, ok := nr.Payload.(records.GuidanceDocument)
		if !ok {
			r.logger.Printf("repo guidance | unexpected payload type %T", nr.Payload)
			out.Failed++
			continue
		}
		affected, err := r.db.Exec(ctx, `
			INSERT INTO guidance_documents
				(title, document_url, topic, guidance_type, status, issue_date,
				 data_source, crawl_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (document_url) DO NOTHING`,
			rec.Title, rec.DocumentURL, rec.Topic, rec.GuidanceType, rec.Status, rec.IssueDate,
			rec.DataSource, rec.CrawlTime,
		)
		if err != nil {
			r.logger.Printf("repo guidance | insert url=%s err=%v", rec.DocumentURL, err)
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
