// Package orchestrator fans one keyword set out across every registered
// crawler type concurrently, one keyword fanout per type, and aggregates the
// per-type outcomes.
package orchestrator

import (
	"context"
	"log"
	"time"

	"regcrawl/internal/crawler"
)

// DefaultJoinTimeout bounds how long a combined run may take before the
// orchestrator returns with whatever finished.
const DefaultJoinTimeout = 30 * time.Minute

// TypeResult is the aggregate outcome of one crawler type's fanout.
type TypeResult struct {
	Saved             int                   `json:"saved"`
	Skipped           int                   `json:"skipped"`
	Pages             int                   `json:"pages"`
	KeywordsProcessed int                   `json:"keywords_processed"`
	Errors            []crawler.FanoutError `json:"errors,omitempty"`
	// TimedOut marks a type that had not reported when the join deadline
	// passed; its counters are zero, not partial.
	TimedOut bool `json:"timed_out,omitempty"`
}

type registration struct {
	crawlerType string
	fanout      *crawler.Fanout
}

type Orchestrator struct {
	jobs        []registration
	joinTimeout time.Duration
	logger      *log.Logger
}

func New(joinTimeout time.Duration, logger *log.Logger) *Orchestrator {
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{joinTimeout: joinTimeout, logger: logger}
}

// Register adds one crawler type. Registration order is the submit order;
// all types run concurrently regardless.
func (o *Orchestrator) Register(crawlerType string, fanout *crawler.Fanout) {
	if crawlerType == "" || fanout == nil {
		return
	}
	o.jobs = append(o.jobs, registration{crawlerType: crawlerType, fanout: fanout})
}

// Types lists the registered crawler types in registration order.
func (o *Orchestrator) Types() []string {
	out := make([]string, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j.crawlerType)
	}
	return out
}

// RunAll runs every registered fanout over the same keywords and base spec.
// Types that miss the join deadline are reported with TimedOut set; one
// type's failure never cancels its siblings. The datastore is the only
// resource the types share.
func (o *Orchestrator) RunAll(ctx context.Context, keywords []string, base crawler.JobSpec) map[string]TypeResult {
	out := make(map[string]TypeResult, len(o.jobs))
	if len(o.jobs) == 0 {
		return out
	}

	runCtx, cancel := context.WithTimeout(ctx, o.joinTimeout)
	defer cancel()

	pool := newWorkerPool(len(o.jobs), len(o.jobs))
	results := pool.Run(runCtx)

	started := time.Now()
	for _, job := range o.jobs {
		fanout := job.fanout
		crawlerType := job.crawlerType
		pool.Submit(crawlerType, func(ctx context.Context) TypeResult {
			res := fanout.Run(ctx, keywords, base)
			return TypeResult{
				Saved:             res.TotalSaved,
				Skipped:           res.TotalSkipped,
				Pages:             res.TotalPages,
				KeywordsProcessed: res.KeywordsProcessed,
				Errors:            res.Errors,
			}
		})
	}
	pool.Close()

	for res := range results {
		out[res.CrawlerType] = res.Result
		o.logger.Printf("orchestrator done | type=%s saved=%d skipped=%d errors=%d elapsed=%s",
			res.CrawlerType, res.Result.Saved, res.Result.Skipped, len(res.Result.Errors),
			time.Since(started).Round(time.Millisecond))
	}

	for _, job := range o.jobs {
		if _, ok := out[job.crawlerType]; ok {
			continue
		}
		o.logger.Printf("orchestrator timeout | type=%s join=%s", job.crawlerType, o.joinTimeout)
		out[job.crawlerType] = TypeResult{
			TimedOut: true,
			Errors: []crawler.FanoutError{{
				Message: "did not finish before the join deadline",
			}},
		}
	}

	return out
}
