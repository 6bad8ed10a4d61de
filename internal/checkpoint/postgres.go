package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"regcrawl/internal/crawler"
	"regcrawl/internal/database"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("checkpoint not found")

// PostgresStore persists crawler.Progress rows keyed by the job identity
// (crawler_type, search_term, date_from, date_to). Open resumes the RUNNING
// row for an identity when one exists; terminal rows stay untouched and a
// new run gets a new row.
type PostgresStore struct {
	db database.DB
}

func NewPostgresStore(db database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Open(ctx context.Context, id crawler.Identity, batchSize int) (*crawler.Progress, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, current_offset, total_fetched, target_total, batch_size, created_time
		FROM crawler_checkpoints
		WHERE crawler_type = $1 AND search_term = $2 AND date_from = $3 AND date_to = $4
		  AND status = $5
		ORDER BY created_time DESC
		LIMIT 1`,
		id.CrawlerType, id.SearchTerm, id.DateFrom, id.DateTo, string(crawler.StatusRunning),
	)

	p := &crawler.Progress{Identity: id, BatchSize: batchSize, Status: crawler.StatusRunning}
	var target sql.NullInt64
	err := row.Scan(&p.ID, &p.CurrentOffset, &p.TotalFetched, &target, &p.BatchSize, &p.CreatedTime)
	switch {
	case err == nil:
		if target.Valid {
			t := int(target.Int64)
			p.TotalAvailable = &t
		}
		p.LastUpdated = time.Now()
		return p, nil
	case errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows):
		now := time.Now()
		p.CreatedTime = now
		p.LastUpdated = now
		return p, s.insert(ctx, p)
	default:
		return nil, err
	}
}

func (s *PostgresStore) Save(ctx context.Context, p *crawler.Progress) error {
	if p == nil {
		return errors.New("nil progress")
	}
	if p.ID == 0 {
		return s.insert(ctx, p)
	}
	_, err := s.db.Exec(ctx, `
		UPDATE crawler_checkpoints
		SET current_offset = $1, total_fetched = $2, target_total = $3,
		    status = $4, error_message = $5, last_updated = $6
		WHERE id = $7`,
		p.CurrentOffset, p.TotalFetched, nullableInt(p.TotalAvailable),
		string(p.Status), nullableString(p.ErrorMessage), p.LastUpdated, p.ID,
	)
	return err
}

func (s *PostgresStore) insert(ctx context.Context, p *crawler.Progress) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO crawler_checkpoints
			(crawler_type, search_term, date_from, date_to, current_offset,
			 total_fetched, target_total, batch_size, status, error_message,
			 last_updated, created_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		p.Identity.CrawlerType, p.Identity.SearchTerm, p.Identity.DateFrom, p.Identity.DateTo,
		p.CurrentOffset, p.TotalFetched, nullableInt(p.TotalAvailable), p.BatchSize,
		string(p.Status), nullableString(p.ErrorMessage), p.LastUpdated, p.CreatedTime,
	)
	return row.Scan(&p.ID)
}

// ListFilter narrows checkpoint listings for the API surface.
type ListFilter struct {
	CrawlerType string
	Status      string
	Limit       int
	Offset      int
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]crawler.Progress, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, crawler_type, search_term, date_from, date_to, current_offset,
		       total_fetched, target_total, batch_size, status, error_message,
		       last_updated, created_time
		FROM crawler_checkpoints
		WHERE ($1 = '' OR crawler_type = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY last_updated DESC
		LIMIT $3 OFFSET $4`,
		strings.TrimSpace(f.CrawlerType), strings.TrimSpace(strings.ToUpper(f.Status)), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]crawler.Progress, 0)
	for rows.Next() {
		var p crawler.Progress
		var target sql.NullInt64
		var errMsg sql.NullString
		var status string
		if err := rows.Scan(
			&p.ID, &p.Identity.CrawlerType, &p.Identity.SearchTerm,
			&p.Identity.DateFrom, &p.Identity.DateTo, &p.CurrentOffset,
			&p.TotalFetched, &target, &p.BatchSize, &status, &errMsg,
			&p.LastUpdated, &p.CreatedTime,
		); err != nil {
			return nil, err
		}
		p.Status = crawler.Status(status)
		if target.Valid {
			t := int(target.Int64)
			p.TotalAvailable = &t
		}
		if errMsg.Valid {
			m := errMsg.String
			p.ErrorMessage = &m
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (crawler.Progress, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, crawler_type, search_term, date_from, date_to, current_offset,
		       total_fetched, target_total, batch_size, status, error_message,
		       last_updated, created_time
		FROM crawler_checkpoints WHERE id = $1`, id)

	var p crawler.Progress
	var target sql.NullInt64
	var errMsg sql.NullString
	var status string
	err := row.Scan(
		&p.ID, &p.Identity.CrawlerType, &p.Identity.SearchTerm,
		&p.Identity.DateFrom, &p.Identity.DateTo, &p.CurrentOffset,
		&p.TotalFetched, &target, &p.BatchSize, &status, &errMsg,
		&p.LastUpdated, &p.CreatedTime,
	)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return crawler.Progress{}, ErrNotFound
	}
	if err != nil {
		return crawler.Progress{}, err
	}
	p.Status = crawler.Status(status)
	if target.Valid {
		t := int(target.Int64)
		p.TotalAvailable = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		p.ErrorMessage = &m
	}
	return p, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
