package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type rec struct {
	key string
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(raw RawRecord) (NormalizedRecord, error) {
	r, ok := raw.(rec)
	if !ok {
		return NormalizedRecord{}, errors.New("unexpected raw type")
	}
	if r.key == "!bad" {
		return NormalizedRecord{}, errors.New("unparseable record")
	}
	return NormalizedRecord{NaturalKey: r.key, Payload: r}, nil
}

// datasetFetcher pages through a fixed slice, like a real API would.
type datasetFetcher struct {
	records     []RawRecord
	reportTotal bool
	calls       int
}

func (f *datasetFetcher) FetchPage(_ context.Context, _ JobSpec, offset, limit int) (RawPage, error) {
	f.calls++
	page := RawPage{}
	if f.reportTotal {
		total := len(f.records)
		page.TotalAvailable = &total
	}
	if offset >= len(f.records) {
		return page, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	page.Records = append(page.Records, f.records[offset:end]...)
	return page, nil
}

// scriptFetcher returns a fixed sequence of pages, then empty pages.
type scriptFetcher struct {
	pages []RawPage
	calls int
}

func (f *scriptFetcher) FetchPage(context.Context, JobSpec, int, int) (RawPage, error) {
	f.calls++
	if f.calls-1 < len(f.pages) {
		return f.pages[f.calls-1], nil
	}
	return RawPage{}, nil
}

type failingFetcher struct {
	calls int
}

func (f *failingFetcher) FetchPage(context.Context, JobSpec, int, int) (RawPage, error) {
	f.calls++
	return RawPage{}, errors.New("connection reset")
}

// memStore is the shared datastore fake: duplicate checks and writes see the
// same key set, so a re-run observes the first run's inserts.
type memStore struct {
	existing    map[string]bool
	saved       []NormalizedRecord
	failKeys    map[string]bool
	existsErrs  int
	writeErrs   int
	existsCalls int
}

func newMemStore() *memStore {
	return &memStore{existing: make(map[string]bool)}
}

func (s *memStore) Exists(_ context.Context, key string) (bool, error) {
	s.existsCalls++
	if s.existsErrs > 0 {
		s.existsErrs--
		return false, errors.New("backend flaky")
	}
	return s.existing[key], nil
}

func (s *memStore) WriteAll(_ context.Context, records []NormalizedRecord) (BatchOutcome, error) {
	if s.writeErrs > 0 {
		s.writeErrs--
		return BatchOutcome{}, errors.New("write failed")
	}
	var out BatchOutcome
	for _, r := range records {
		if s.failKeys[r.NaturalKey] {
			out.Failed++
			continue
		}
		if r.NaturalKey != "" {
			s.existing[r.NaturalKey] = true
		}
		s.saved = append(s.saved, r)
		out.Saved++
	}
	return out, nil
}

type memCheckpoints struct {
	saves []Progress
}

func (m *memCheckpoints) Open(_ context.Context, id Identity, batchSize int) (*Progress, error) {
	now := time.Now()
	return &Progress{
		Identity:    id,
		BatchSize:   batchSize,
		Status:      StatusRunning,
		CreatedTime: now,
		LastUpdated: now,
	}, nil
}

func (m *memCheckpoints) Save(_ context.Context, p *Progress) error {
	m.saves = append(m.saves, *p)
	return nil
}

func (m *memCheckpoints) last(t *testing.T) Progress {
	t.Helper()
	if len(m.saves) == 0 {
		t.Fatalf("no checkpoint was saved")
	}
	return m.saves[len(m.saves)-1]
}

func dataset(n int) []RawRecord {
	return datasetFrom(0, n)
}

func datasetFrom(start, n int) []RawRecord {
	out := make([]RawRecord, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, rec{key: fmt.Sprintf("K%06d", i)})
	}
	return out
}

func fastOptions() Options {
	return Options{
		CrawlerType:     "test_source",
		RetryDelay:      time.Millisecond,
		WriteRetryDelay: time.Millisecond,
		PageDelay:       -1,
	}
}

func newTestController(opts Options, fetcher PageFetcher, store *memStore, cps *memCheckpoints) *Controller {
	return NewController(opts, fetcher, fakeNormalizer{}, store, store, cps, testLogger())
}

func TestRunStopsOnShortPage(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(80)}
	store := newMemStore()
	cps := &memCheckpoints{}
	c := newTestController(fastOptions(), fetcher, store, cps)

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (err=%v)", res.Status, res.Err)
	}
	if res.Stop != StopShortPage {
		t.Fatalf("expected stop=short_page, got %s", res.Stop)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetch calls, got %d", fetcher.calls)
	}
	if res.Saved != 80 || res.Fetched != 80 {
		t.Fatalf("expected 80 saved/fetched, got saved=%d fetched=%d", res.Saved, res.Fetched)
	}
}

func TestRunEmptyPageBeatsPageCap(t *testing.T) {
	fetcher := &scriptFetcher{pages: []RawPage{
		{Records: datasetFrom(0, 50)},
		{Records: datasetFrom(50, 50)},
		{},
	}}
	store := newMemStore()
	cps := &memCheckpoints{}
	c := newTestController(fastOptions(), fetcher, store, cps)

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50, MaxPages: 10})

	if res.Stop != StopEmptyPage {
		t.Fatalf("expected stop=empty_page, got %s", res.Stop)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetch calls, got %d", fetcher.calls)
	}
}

func TestRunRetryExhaustionFails(t *testing.T) {
	fetcher := &failingFetcher{}
	store := newMemStore()
	cps := &memCheckpoints{}
	c := newTestController(fastOptions(), fetcher, store, cps)

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if res.Stop != StopFetchFailed {
		t.Fatalf("expected stop=fetch_failed, got %s", res.Stop)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected exactly 3 fetch attempts, got %d", fetcher.calls)
	}
	last := cps.last(t)
	if last.Status != StatusFailed {
		t.Fatalf("expected FAILED checkpoint, got %s", last.Status)
	}
	if last.ErrorMessage == nil || *last.ErrorMessage == "" {
		t.Fatalf("expected non-empty checkpoint error message")
	}
}

func TestRunFetchesExactlyReportedTotal(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(137), reportTotal: true}
	store := newMemStore()
	cps := &memCheckpoints{}
	c := newTestController(fastOptions(), fetcher, store, cps)

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (err=%v)", res.Status, res.Err)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetch calls (50, 50, 37), got %d", fetcher.calls)
	}
	if res.Fetched != 137 {
		t.Fatalf("expected 137 fetched, got %d", res.Fetched)
	}
	last := cps.last(t)
	if last.TotalFetched != 137 {
		t.Fatalf("expected checkpoint totalFetched=137, got %d", last.TotalFetched)
	}
	if last.TotalAvailable == nil || *last.TotalAvailable != 137 {
		t.Fatalf("expected checkpoint totalAvailable=137, got %v", last.TotalAvailable)
	}
}

func TestRerunTerminatesViaDuplicateStreak(t *testing.T) {
	records := dataset(200)
	store := newMemStore()

	first := newTestController(fastOptions(), &datasetFetcher{records: records}, store, &memCheckpoints{})
	res1 := first.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})
	if res1.Saved != 200 {
		t.Fatalf("first run: expected 200 saved, got %d", res1.Saved)
	}

	refetch := &datasetFetcher{records: records}
	second := newTestController(fastOptions(), refetch, store, &memCheckpoints{})
	res2 := second.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res2.Saved != 0 {
		t.Fatalf("second run: expected 0 newly saved, got %d", res2.Saved)
	}
	if res2.Stop != StopDuplicateStreak {
		t.Fatalf("second run: expected stop=duplicate_streak, got %s", res2.Stop)
	}
	if refetch.calls != 3 {
		t.Fatalf("second run: expected 3 pages before streak stop, got %d", refetch.calls)
	}
}

func TestDuplicateStreakLimitIsConfigurable(t *testing.T) {
	records := dataset(200)
	store := newMemStore()
	for _, r := range records {
		store.existing[r.(rec).key] = true
	}

	opts := fastOptions()
	opts.DuplicateStreakLimit = 2
	fetcher := &datasetFetcher{records: records}
	c := newTestController(opts, fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})
	if res.Stop != StopDuplicateStreak {
		t.Fatalf("expected stop=duplicate_streak, got %s", res.Stop)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 pages with streak limit 2, got %d", fetcher.calls)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(160)}
	store := newMemStore()
	cps := &memCheckpoints{}
	c := newTestController(fastOptions(), fetcher, store, cps)

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})
	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}

	prevOffset := 0
	prevFetched := 0
	for i, p := range cps.saves {
		if p.Status != StatusRunning && i != len(cps.saves)-1 {
			t.Fatalf("save %d: terminal status before final save", i)
		}
		if p.TotalFetched < prevFetched {
			t.Fatalf("save %d: totalFetched shrank %d -> %d", i, prevFetched, p.TotalFetched)
		}
		if i < len(cps.saves)-1 && p.CurrentOffset != prevOffset+50 {
			t.Fatalf("save %d: offset advanced %d -> %d, want +50", i, prevOffset, p.CurrentOffset)
		}
		if i < len(cps.saves)-1 {
			prevOffset = p.CurrentOffset
		}
		prevFetched = p.TotalFetched
	}
}

func TestPartialWriteFailuresDoNotFailRun(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(10)}
	store := newMemStore()
	store.failKeys = map[string]bool{"K000003": true, "K000006": true}
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 10})

	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (err=%v)", res.Status, res.Err)
	}
	if res.Saved != 8 {
		t.Fatalf("expected 8 saved with 2 per-record failures, got %d", res.Saved)
	}
}

func TestWholeBatchWriteRetryExhaustionContinuesRun(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(60)}
	store := newMemStore()
	store.writeErrs = 100
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Status != StatusCompleted {
		t.Fatalf("write failures must not fail the run, got %s (err=%v)", res.Status, res.Err)
	}
	if res.Saved != 0 {
		t.Fatalf("expected 0 saved, got %d", res.Saved)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected run to reach the second page, got %d calls", fetcher.calls)
	}
}

func TestEmptyStreakToleranceContinuesOverGap(t *testing.T) {
	gap := []RawPage{
		{Records: dataset(50)},
		{},
		{Records: dataset(30)},
	}
	fetcher := &scriptFetcher{pages: gap}
	store := newMemStore()
	opts := fastOptions()
	opts.EmptyStreakLimit = 2
	c := newTestController(opts, fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Stop != StopShortPage {
		t.Fatalf("expected run to continue past single gap, stop=%s", res.Stop)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetch calls, got %d", fetcher.calls)
	}
	if res.Fetched != 80 {
		t.Fatalf("expected 80 fetched across the gap, got %d", res.Fetched)
	}
}

func TestMaxPagesStopsRun(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(1000)}
	store := newMemStore()
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50, MaxPages: 4})

	if res.Stop != StopMaxPages {
		t.Fatalf("expected stop=max_pages, got %s", res.Stop)
	}
	if fetcher.calls != 4 {
		t.Fatalf("expected 4 fetch calls, got %d", fetcher.calls)
	}
}

func TestMaxRecordsStopsRun(t *testing.T) {
	fetcher := &datasetFetcher{records: dataset(1000)}
	store := newMemStore()
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: 120, BatchSize: 50})

	if res.Stop != StopMaxRecords {
		t.Fatalf("expected stop=max_records, got %s", res.Stop)
	}
	if res.Fetched != 120 {
		t.Fatalf("expected exactly 120 fetched, got %d", res.Fetched)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetch calls (50, 50, 20), got %d", fetcher.calls)
	}
}

func TestInterruptionDuringRetryFailsRun(t *testing.T) {
	fetcher := &failingFetcher{}
	store := newMemStore()
	cps := &memCheckpoints{}
	opts := fastOptions()
	opts.RetryDelay = 500 * time.Millisecond
	c := newTestController(opts, fetcher, store, cps)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res := c.Run(ctx, JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Stop != StopInterrupted {
		t.Fatalf("expected stop=interrupted, got %s", res.Stop)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected interruption to abort retries, got %d attempts", fetcher.calls)
	}
	last := cps.last(t)
	if last.Status != StatusFailed {
		t.Fatalf("expected FAILED checkpoint after interruption, got %s", last.Status)
	}
}

func TestKeylessRecordsAreAlwaysInserted(t *testing.T) {
	page := RawPage{Records: []RawRecord{rec{key: ""}, rec{key: ""}, rec{key: "K1"}}}
	fetcher := &scriptFetcher{pages: []RawPage{page}}
	store := newMemStore()
	store.existing["K1"] = true
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Saved != 2 {
		t.Fatalf("expected both keyless records saved, got %d", res.Saved)
	}
	if res.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", res.Duplicates)
	}
}

func TestSeenSetRejectsRepeatsWithinRun(t *testing.T) {
	page := RawPage{Records: []RawRecord{rec{key: "A"}, rec{key: "A"}, rec{key: "B"}}}
	fetcher := &scriptFetcher{pages: []RawPage{page}}
	store := newMemStore()
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Saved != 2 {
		t.Fatalf("expected 2 saved, got %d", res.Saved)
	}
	if res.Duplicates != 1 {
		t.Fatalf("expected repeat within page counted as duplicate, got %d", res.Duplicates)
	}
	if store.existsCalls != 2 {
		t.Fatalf("expected repeat to skip the backend check, got %d exists calls", store.existsCalls)
	}
}

func TestDuplicateCheckErrorBiasesTowardDuplicate(t *testing.T) {
	page := RawPage{Records: []RawRecord{rec{key: "A"}}}
	fetcher := &scriptFetcher{pages: []RawPage{page}}
	store := newMemStore()
	store.existsErrs = 100
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Saved != 0 {
		t.Fatalf("expected flaky dedup backend to suppress insert, got %d saved", res.Saved)
	}
	if res.Duplicates != 1 {
		t.Fatalf("expected record counted as duplicate, got %d", res.Duplicates)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
}

func TestNormalizeErrorDropsSingleRecord(t *testing.T) {
	page := RawPage{Records: []RawRecord{rec{key: "A"}, rec{key: "!bad"}, rec{key: "B"}}}
	fetcher := &scriptFetcher{pages: []RawPage{page}}
	store := newMemStore()
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Saved != 2 {
		t.Fatalf("expected 2 saved around the bad record, got %d", res.Saved)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
}

func TestLastPageSignalStopsRun(t *testing.T) {
	pages := []RawPage{
		{Records: dataset(50)},
		{Records: dataset(50), IsLastPage: true},
	}
	fetcher := &scriptFetcher{pages: pages}
	store := newMemStore()
	c := newTestController(fastOptions(), fetcher, store, &memCheckpoints{})

	res := c.Run(context.Background(), JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.Stop != StopLastPage {
		t.Fatalf("expected stop=last_page, got %s", res.Stop)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetch calls, got %d", fetcher.calls)
	}
}

func TestIdentityTrimsFields(t *testing.T) {
	id := NewIdentity(" fda_510k ", JobSpec{SearchTerm: " device_name:monitor ", DateFrom: " 2024-01-01 "})
	if id.CrawlerType != "fda_510k" || id.SearchTerm != "device_name:monitor" || id.DateFrom != "2024-01-01" {
		t.Fatalf("identity fields not trimmed: %+v", id)
	}
}
