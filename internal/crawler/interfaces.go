package crawler

import "context"

// PageFetcher returns one page of raw records for a search spec. offset and
// limit are the pagination cursor and requested page size; how they map onto
// the upstream request (skip count vs page number) is the fetcher's concern.
type PageFetcher interface {
	FetchPage(ctx context.Context, spec JobSpec, offset, limit int) (RawPage, error)
}

// Normalizer maps one raw record into the canonical shape with an extractable
// natural key. An error drops the single record, never the page.
type Normalizer interface {
	Normalize(raw RawRecord) (NormalizedRecord, error)
}

// DuplicateChecker reports whether a natural key already exists in storage.
// Implementations may use composite keys internally; the controller only
// hands over the opaque key string. Implementations must be safe for
// concurrent use by independent jobs.
type DuplicateChecker interface {
	Exists(ctx context.Context, naturalKey string) (bool, error)
}

// BatchWriter inserts the given records. Per-record failures are soft: the
// writer counts them in BatchOutcome.Failed and keeps going. A non-nil error
// means the whole batch failed and may be retried by the controller.
type BatchWriter interface {
	WriteAll(ctx context.Context, records []NormalizedRecord) (BatchOutcome, error)
}

// CheckpointStore persists crawl progress. Open returns the RUNNING
// checkpoint matching the identity if one exists, otherwise a fresh one.
// Terminal checkpoints are never reopened.
type CheckpointStore interface {
	Open(ctx context.Context, id Identity, batchSize int) (*Progress, error)
	Save(ctx context.Context, p *Progress) error
}
