package crawler

import (
	"strings"
	"time"
)

// JobSpec is the immutable input to one crawl run. Derived specs (keyword
// fanout) are built by copying the value, never by mutating a shared one.
type JobSpec struct {
	SearchTerm string
	DateFrom   string
	DateTo     string

	// MaxRecords caps the number of fetched records. -1 means crawl until
	// the source is exhausted.
	MaxRecords int

	// BatchSize is the requested page size per fetch. Fetchers may cap it
	// to a source-specific maximum.
	BatchSize int

	// MaxPages caps the number of fetched pages. 0 means unbounded.
	MaxPages int
}

func (s JobSpec) Unbounded() bool {
	return s.MaxRecords < 0
}

type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Identity keys a checkpoint row: a crashed run resumes only a RUNNING
// checkpoint with the exact same identity.
type Identity struct {
	CrawlerType string
	SearchTerm  string
	DateFrom    string
	DateTo      string
}

func NewIdentity(crawlerType string, spec JobSpec) Identity {
	return Identity{
		CrawlerType: strings.TrimSpace(crawlerType),
		SearchTerm:  strings.TrimSpace(spec.SearchTerm),
		DateFrom:    strings.TrimSpace(spec.DateFrom),
		DateTo:      strings.TrimSpace(spec.DateTo),
	}
}

// Progress is the mutable checkpoint state threaded through a run and
// persisted after every page.
type Progress struct {
	ID            int64
	Identity      Identity
	CurrentOffset int
	TotalFetched  int
	// TotalAvailable is learned from the first page's metadata and never
	// shrinks afterwards.
	TotalAvailable *int
	BatchSize      int
	Status         Status
	ErrorMessage   *string
	LastUpdated    time.Time
	CreatedTime    time.Time
}

func (p *Progress) Terminal() bool {
	return p != nil && (p.Status == StatusCompleted || p.Status == StatusFailed)
}

// RawRecord is whatever one source's fetcher hands to its normalizer.
type RawRecord any

// RawPage is the output of one PageFetcher call.
type RawPage struct {
	Records []RawRecord
	// IsLastPage is set when the source can signal exhaustion explicitly
	// (missing next link, "no results" banner).
	IsLastPage     bool
	TotalAvailable *int
}

// NormalizedRecord is an opaque payload plus the natural key used for
// deduplication. A record with no derivable key is never treated as a
// duplicate and is always attempted for insert.
type NormalizedRecord struct {
	NaturalKey string
	Payload    any
}

// BatchOutcome reports what happened to one page's worth of records.
type BatchOutcome struct {
	Saved      int
	Duplicates int
	// Failed counts per-record soft failures inside the writer.
	Failed int
}

// StopReason is the explicit termination path of a run; there is no
// exception-style unwinding for expected stops.
type StopReason string

const (
	StopNone            StopReason = ""
	StopEmptyPage       StopReason = "empty_page"
	StopLastPage        StopReason = "last_page"
	StopShortPage       StopReason = "short_page"
	StopMaxRecords      StopReason = "max_records"
	StopMaxPages        StopReason = "max_pages"
	StopDuplicateStreak StopReason = "duplicate_streak"
	StopFetchFailed     StopReason = "fetch_failed"
	StopInterrupted     StopReason = "interrupted"
)

// RunResult aggregates one controller run.
type RunResult struct {
	Saved      int
	Duplicates int
	Fetched    int
	Pages      int
	Stop       StopReason
	Status     Status
	Err        error
}

// FieldRole is one semantic slot a keyword can be substituted into (device
// name, applicant, trade name). Query renders the source-specific search
// expression for a keyword.
type FieldRole struct {
	Name  string
	Query func(keyword string) string
}

// FanoutError records one failed (keyword, role) pair without aborting the
// rest of the fanout.
type FanoutError struct {
	Keyword string
	Role    string
	Message string
}

// FanoutResult aggregates across keyword x field-role runs.
type FanoutResult struct {
	TotalSaved        int
	TotalSkipped      int
	TotalPages        int
	KeywordsProcessed int
	Errors            []FanoutError
}
