package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Options tune one controller instance. Zero values fall back to the
// defaults observed sane for polite public-API crawling.
type Options struct {
	CrawlerType string

	// PageSizeCap is the source's hard page-size maximum (openFDA: 100 or
	// 1000). 0 means no cap beyond the spec's batch size.
	PageSizeCap int

	RetryAttempts      int           // fetch attempts per page, default 3
	RetryDelay         time.Duration // flat delay between fetch attempts, default 5s
	WriteRetryAttempts int           // whole-batch write attempts, default 3
	WriteRetryDelay    time.Duration // scaled by attempt number, default 2s

	// DuplicateStreakLimit is how many consecutive all-duplicate batches
	// end an unbounded crawl that caught up to ingested data. Sources
	// disagree on 2 vs 3, so it is configuration, default 3.
	DuplicateStreakLimit int

	// EmptyStreakLimit is how many consecutive empty pages end the run.
	// 1 stops on the first empty page; 2 tolerates a sporadic mid-stream
	// gap. Default 1.
	EmptyStreakLimit int

	PageDelay time.Duration // politeness delay between pages, default 1s
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.WriteRetryAttempts <= 0 {
		o.WriteRetryAttempts = 3
	}
	if o.WriteRetryDelay <= 0 {
		o.WriteRetryDelay = 2 * time.Second
	}
	if o.DuplicateStreakLimit <= 0 {
		o.DuplicateStreakLimit = 3
	}
	if o.EmptyStreakLimit <= 0 {
		o.EmptyStreakLimit = 1
	}
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	return o
}

// Observer receives a callback after every checkpointed page. Used to push
// progress events to websocket clients; carries no control-flow meaning.
type Observer interface {
	PageCompleted(id Identity, p Progress, out BatchOutcome)
}

// Controller runs one crawl job: fetch -> normalize -> dedupe -> write
// cycles governed by the stop rules, retry policy and checkpointing. The
// page loop is deliberately single-threaded so the offset cursor and the
// checkpoint stay consistent.
type Controller struct {
	opts        Options
	fetcher     PageFetcher
	normalizer  Normalizer
	dup         DuplicateChecker
	writer      BatchWriter
	checkpoints CheckpointStore
	observer    Observer
	logger      *log.Logger
}

func NewController(opts Options, fetcher PageFetcher, normalizer Normalizer, dup DuplicateChecker, writer BatchWriter, checkpoints CheckpointStore, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		opts:        opts.withDefaults(),
		fetcher:     fetcher,
		normalizer:  normalizer,
		dup:         dup,
		writer:      writer,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

func (c *Controller) SetObserver(o Observer) {
	if c == nil {
		return
	}
	c.observer = o
}

// Run executes one crawl job to a terminal state. A RUNNING checkpoint with
// the same identity is resumed instead of starting from page one. The
// returned result always carries a terminal status; errors never escape as
// panics or sentinel exceptions.
func (c *Controller) Run(ctx context.Context, spec JobSpec) RunResult {
	res := RunResult{Status: StatusFailed}

	id := NewIdentity(c.opts.CrawlerType, spec)
	progress, err := c.checkpoints.Open(ctx, id, spec.BatchSize)
	if err != nil {
		res.Err = fmt.Errorf("open checkpoint: %w", err)
		res.Stop = StopFetchFailed
		return res
	}
	if progress.CurrentOffset > 0 {
		c.logger.Printf("crawl resume | type=%s search=%q offset=%d fetched=%d",
			id.CrawlerType, id.SearchTerm, progress.CurrentOffset, progress.TotalFetched)
	}

	// Per-run guard against a source returning the same record twice
	// inside one page or across adjacent pages.
	seen := make(map[string]struct{})

	emptyStreak := 0
	dupStreak := 0
	pages := 0

	for {
		limit := c.pageLimit(spec, progress.TotalFetched)
		if limit <= 0 {
			return c.complete(progress, &res, StopMaxRecords)
		}

		page, err := c.fetchWithRetry(ctx, spec, progress.CurrentOffset, limit)
		if err != nil {
			return c.fail(progress, &res, err)
		}
		pages++
		res.Pages = pages

		if progress.TotalAvailable == nil && page.TotalAvailable != nil {
			total := *page.TotalAvailable
			progress.TotalAvailable = &total
			c.logger.Printf("crawl total | type=%s search=%q total_available=%d",
				id.CrawlerType, id.SearchTerm, total)
		}

		if len(page.Records) == 0 {
			emptyStreak++
			if emptyStreak >= c.opts.EmptyStreakLimit {
				return c.complete(progress, &res, StopEmptyPage)
			}
			// Sporadic mid-stream gap: move the cursor on without
			// advancing the save count and keep going.
			progress.CurrentOffset += limit
			if err := c.saveProgress(ctx, progress); err != nil {
				return c.fail(progress, &res, err)
			}
			if err := c.pause(ctx); err != nil {
				return c.fail(progress, &res, err)
			}
			continue
		}
		emptyStreak = 0

		out, err := c.processPage(ctx, page.Records, seen)
		if err != nil {
			return c.fail(progress, &res, err)
		}
		res.Saved += out.Saved
		res.Duplicates += out.Duplicates
		res.Fetched += len(page.Records)

		// The cursor advances by the requested size, not the returned
		// count, so a short final page leaves a consistent offset for
		// any later resumption.
		progress.CurrentOffset += limit
		progress.TotalFetched += len(page.Records)
		if err := c.saveProgress(ctx, progress); err != nil {
			return c.fail(progress, &res, err)
		}

		c.logger.Printf("crawl page | type=%s search=%q page=%d offset=%d saved=%d skipped=%d failed=%d fetched=%d total=%s",
			id.CrawlerType, id.SearchTerm, pages, progress.CurrentOffset,
			out.Saved, out.Duplicates, out.Failed, progress.TotalFetched, totalLabel(progress.TotalAvailable))
		if c.observer != nil {
			c.observer.PageCompleted(id, *progress, out)
		}

		// Stop rules, in priority order.
		if page.IsLastPage {
			return c.complete(progress, &res, StopLastPage)
		}
		if len(page.Records) < limit {
			return c.complete(progress, &res, StopShortPage)
		}
		if target, bounded := c.target(spec, progress); bounded && progress.TotalFetched >= target {
			return c.complete(progress, &res, StopMaxRecords)
		}
		if spec.MaxPages != 0 && pages >= spec.MaxPages {
			return c.complete(progress, &res, StopMaxPages)
		}
		if out.Saved == 0 && out.Duplicates > 0 {
			dupStreak++
			if dupStreak >= c.opts.DuplicateStreakLimit {
				c.logger.Printf("crawl caught up | type=%s search=%q duplicate_batches=%d",
					id.CrawlerType, id.SearchTerm, dupStreak)
				return c.complete(progress, &res, StopDuplicateStreak)
			}
		} else {
			dupStreak = 0
		}

		if err := c.pause(ctx); err != nil {
			return c.fail(progress, &res, err)
		}
	}
}

// pageLimit computes the next requested page size: the spec's batch size,
// capped by the source maximum and by the remaining record budget.
func (c *Controller) pageLimit(spec JobSpec, fetched int) int {
	limit := spec.BatchSize
	if limit <= 0 {
		limit = 50
	}
	if c.opts.PageSizeCap > 0 && limit > c.opts.PageSizeCap {
		limit = c.opts.PageSizeCap
	}
	if !spec.Unbounded() {
		remaining := spec.MaxRecords - fetched
		if remaining < limit {
			limit = remaining
		}
	}
	return limit
}

// target is the effective record budget: MaxRecords when bounded, otherwise
// the source-reported total once known.
func (c *Controller) target(spec JobSpec, p *Progress) (int, bool) {
	if !spec.Unbounded() {
		return spec.MaxRecords, true
	}
	if p.TotalAvailable != nil {
		return *p.TotalAvailable, true
	}
	return 0, false
}

func (c *Controller) fetchWithRetry(ctx context.Context, spec JobSpec, offset, limit int) (RawPage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RawPage{}, err
		}
		page, err := c.fetcher.FetchPage(ctx, spec, offset, limit)
		if err == nil {
			return page, nil
		}
		lastErr = err
		c.logger.Printf("crawl fetch error | type=%s offset=%d attempt=%d/%d err=%v",
			c.opts.CrawlerType, offset, attempt, c.opts.RetryAttempts, err)
		if attempt < c.opts.RetryAttempts {
			if serr := sleepCtx(ctx, c.opts.RetryDelay); serr != nil {
				return RawPage{}, serr
			}
		}
	}
	return RawPage{}, fmt.Errorf("fetch offset %d failed after %d attempts: %w", offset, c.opts.RetryAttempts, lastErr)
}

// processPage normalizes, dedupes and writes one page. Only an interruption
// is returned as an error; normalization and write failures degrade to
// logged drops.
func (c *Controller) processPage(ctx context.Context, records []RawRecord, seen map[string]struct{}) (BatchOutcome, error) {
	var out BatchOutcome
	batch := make([]NormalizedRecord, 0, len(records))

	for _, raw := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := c.normalizer.Normalize(raw)
		if err != nil {
			c.logger.Printf("crawl normalize error | type=%s err=%v", c.opts.CrawlerType, err)
			continue
		}
		key := strings.TrimSpace(rec.NaturalKey)
		if key == "" {
			// No derivable key: never a duplicate, always attempted.
			batch = append(batch, rec)
			continue
		}
		if _, ok := seen[key]; ok {
			out.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		dup, err := c.dup.Exists(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			// Bias toward under-counting over double inserts when the
			// backend is flaky.
			c.logger.Printf("crawl dedup error | type=%s key=%s err=%v", c.opts.CrawlerType, key, err)
			out.Duplicates++
			continue
		}
		if dup {
			out.Duplicates++
			continue
		}
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return out, nil
	}

	for attempt := 1; attempt <= c.opts.WriteRetryAttempts; attempt++ {
		wout, err := c.writer.WriteAll(ctx, batch)
		if err == nil {
			out.Saved += wout.Saved
			out.Duplicates += wout.Duplicates
			out.Failed += wout.Failed
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		c.logger.Printf("crawl write error | type=%s size=%d attempt=%d/%d err=%v",
			c.opts.CrawlerType, len(batch), attempt, c.opts.WriteRetryAttempts, err)
		if attempt < c.opts.WriteRetryAttempts {
			if serr := sleepCtx(ctx, time.Duration(attempt)*c.opts.WriteRetryDelay); serr != nil {
				return out, serr
			}
		}
	}

	// Write retries exhausted: the batch's records are dropped, the run
	// itself keeps going. Only read failures are run-fatal.
	c.logger.Printf("crawl write dropped | type=%s size=%d", c.opts.CrawlerType, len(batch))
	out.Failed += len(batch)
	return out, nil
}

func (c *Controller) complete(p *Progress, res *RunResult, reason StopReason) RunResult {
	p.Status = StatusCompleted
	p.ErrorMessage = nil
	c.finalSave(p)
	res.Stop = reason
	res.Status = StatusCompleted
	c.logger.Printf("crawl done | type=%s search=%q stop=%s pages=%d saved=%d skipped=%d",
		p.Identity.CrawlerType, p.Identity.SearchTerm, reason, res.Pages, res.Saved, res.Duplicates)
	return *res
}

func (c *Controller) fail(p *Progress, res *RunResult, err error) RunResult {
	reason := StopFetchFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		reason = StopInterrupted
	}
	msg := err.Error()
	p.Status = StatusFailed
	p.ErrorMessage = &msg
	c.finalSave(p)
	res.Stop = reason
	res.Status = StatusFailed
	res.Err = err
	c.logger.Printf("crawl failed | type=%s search=%q stop=%s err=%v",
		p.Identity.CrawlerType, p.Identity.SearchTerm, reason, err)
	return *res
}

func (c *Controller) saveProgress(ctx context.Context, p *Progress) error {
	p.LastUpdated = time.Now()
	if err := c.checkpoints.Save(ctx, p); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// finalSave runs on a fresh context so a cancelled run can still record its
// terminal state.
func (c *Controller) finalSave(p *Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.LastUpdated = time.Now()
	if err := c.checkpoints.Save(ctx, p); err != nil {
		c.logger.Printf("crawl checkpoint error | type=%s err=%v", p.Identity.CrawlerType, err)
	}
}

func (c *Controller) pause(ctx context.Context) error {
	if c.opts.PageDelay <= 0 {
		return nil
	}
	return sleepCtx(ctx, c.opts.PageDelay)
}

// sleepCtx waits for d or until the context is cancelled, in which case the
// whole run aborts rather than retrying.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func totalLabel(total *int) string {
	if total == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *total)
}
