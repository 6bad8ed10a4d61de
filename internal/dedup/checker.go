// Package dedup wraps a storage-backed duplicate check with the retry and
// caching behavior the crawl controller expects from it.
package dedup

import (
	"context"
	"log"
	"time"

	"regcrawl/internal/crawler"
)

// KeyCache is the optional fast path in front of the database check.
// Satisfied by the redis cache; nil disables caching.
type KeyCache interface {
	HasKey(ctx context.Context, crawlerType, naturalKey string) bool
	MarkKey(ctx context.Context, crawlerType, naturalKey string)
}

// Checker retries transient backend failures with linear backoff and, when
// retries are exhausted, reports the record as a duplicate: under-counting
// beats double-inserting when the backend is flaky.
type Checker struct {
	crawlerType string
	inner       crawler.DuplicateChecker
	cache       KeyCache

	attempts int
	delay    time.Duration
	logger   *log.Logger
}

func NewChecker(crawlerType string, inner crawler.DuplicateChecker, cache KeyCache, logger *log.Logger) *Checker {
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{
		crawlerType: crawlerType,
		inner:       inner,
		cache:       cache,
		attempts:    3,
		delay:       time.Second,
		logger:      logger,
	}
}

// SetRetry overrides the attempt count and base delay (delay is scaled by
// the attempt number).
func (c *Checker) SetRetry(attempts int, delay time.Duration) {
	if attempts > 0 {
		c.attempts = attempts
	}
	if delay >= 0 {
		c.delay = delay
	}
}

func (c *Checker) Exists(ctx context.Context, naturalKey string) (bool, error) {
	if c.cache != nil && c.cache.HasKey(ctx, c.crawlerType, naturalKey) {
		return true, nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		dup, err := c.inner.Exists(ctx, naturalKey)
		if err == nil {
			if dup && c.cache != nil {
				c.cache.MarkKey(ctx, c.crawlerType, naturalKey)
			}
			return dup, nil
		}
		lastErr = err
		c.logger.Printf("dedup retry | type=%s key=%s attempt=%d/%d err=%v",
			c.crawlerType, naturalKey, attempt, c.attempts, err)
		if attempt < c.attempts {
			if serr := sleep(ctx, time.Duration(attempt)*c.delay); serr != nil {
				return false, serr
			}
		}
	}

	c.logger.Printf("dedup exhausted | type=%s key=%s err=%v", c.crawlerType, naturalKey, lastErr)
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
