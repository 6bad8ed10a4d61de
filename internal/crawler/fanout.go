package crawler

import (
	"context"
	"log"
	"strings"
	"time"
)

// Fanout expands one keyword list into per-field-role crawl jobs and runs
// them strictly sequentially through a single controller. Sequential by
// design: one upstream source should never see parallel keyword searches
// from the same crawler type.
type Fanout struct {
	controller *Controller
	roles      []FieldRole

	// DefaultQuery is used when the caller supplies no keywords; a crawl
	// is never truly "no search".
	DefaultQuery string

	// RoleDelay is the politeness pause between successive role searches.
	RoleDelay time.Duration

	logger *log.Logger
}

func NewFanout(controller *Controller, roles []FieldRole, defaultQuery string, logger *log.Logger) *Fanout {
	if logger == nil {
		logger = log.Default()
	}
	return &Fanout{
		controller:   controller,
		roles:        roles,
		DefaultQuery: defaultQuery,
		RoleDelay:    time.Second,
		logger:       logger,
	}
}

// Run crawls every non-blank keyword under every configured field role.
// Failures of one (keyword, role) pair are recorded and do not abort the
// rest; only an interruption stops the fanout early.
func (f *Fanout) Run(ctx context.Context, keywords []string, base JobSpec) FanoutResult {
	var result FanoutResult

	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		cleaned = append(cleaned, kw)
	}

	if len(cleaned) == 0 {
		spec := base
		spec.SearchTerm = f.DefaultQuery
		f.logger.Printf("fanout default | query=%q", f.DefaultQuery)
		f.runOne(ctx, "", "default", spec, &result)
		return result
	}

	for _, kw := range cleaned {
		if ctx.Err() != nil {
			break
		}
		result.KeywordsProcessed++
		for i, role := range f.roles {
			if ctx.Err() != nil {
				break
			}
			spec := base
			spec.SearchTerm = role.Query(kw)
			f.logger.Printf("fanout search | keyword=%q role=%s search=%q", kw, role.Name, spec.SearchTerm)
			f.runOne(ctx, kw, role.Name, spec, &result)
			if i < len(f.roles)-1 {
				if err := sleepCtx(ctx, f.RoleDelay); err != nil {
					return result
				}
			}
		}
	}

	return result
}

func (f *Fanout) runOne(ctx context.Context, keyword, role string, spec JobSpec, result *FanoutResult) {
	res := f.controller.Run(ctx, spec)
	result.TotalSaved += res.Saved
	result.TotalSkipped += res.Duplicates
	result.TotalPages += res.Pages
	if res.Err != nil {
		f.logger.Printf("fanout error | keyword=%q role=%s err=%v", keyword, role, res.Err)
		result.Errors = append(result.Errors, FanoutError{
			Keyword: keyword,
			Role:    role,
			Message: res.Err.Error(),
		})
	}
}
