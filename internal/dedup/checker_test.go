package dedup

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type flakyChecker struct {
	failures int
	exists   bool
	calls    int
}

func (f *flakyChecker) Exists(context.Context, string) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, errors.New("backend down")
	}
	return f.exists, nil
}

type fakeCache struct {
	known  map[string]bool
	marked []string
}

func (c *fakeCache) HasKey(_ context.Context, crawlerType, key string) bool {
	return c.known[crawlerType+":"+key]
}

func (c *fakeCache) MarkKey(_ context.Context, crawlerType, key string) {
	c.marked = append(c.marked, crawlerType+":"+key)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestCheckerRetriesTransientFailures(t *testing.T) {
	inner := &flakyChecker{failures: 2, exists: true}
	c := NewChecker("fda_510k", inner, nil, quietLogger())
	c.SetRetry(3, time.Millisecond)

	dup, err := c.Exists(context.Background(), "K123456")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !dup {
		t.Fatalf("expected duplicate after retries")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestCheckerExhaustionReportsDuplicate(t *testing.T) {
	inner := &flakyChecker{failures: 100}
	c := NewChecker("fda_510k", inner, nil, quietLogger())
	c.SetRetry(3, time.Millisecond)

	dup, err := c.Exists(context.Background(), "K123456")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !dup {
		t.Fatalf("exhausted retries must bias toward duplicate")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestCheckerCacheHitSkipsBackend(t *testing.T) {
	inner := &flakyChecker{}
	cache := &fakeCache{known: map[string]bool{"fda_510k:K123456": true}}
	c := NewChecker("fda_510k", inner, cache, quietLogger())

	dup, err := c.Exists(context.Background(), "K123456")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !dup {
		t.Fatalf("expected cached duplicate")
	}
	if inner.calls != 0 {
		t.Fatalf("cache hit must not touch the backend, got %d calls", inner.calls)
	}
}

func TestCheckerMarksConfirmedDuplicates(t *testing.T) {
	inner := &flakyChecker{exists: true}
	cache := &fakeCache{known: map[string]bool{}}
	c := NewChecker("fda_510k", inner, cache, quietLogger())

	if _, err := c.Exists(context.Background(), "K9"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cache.marked) != 1 || cache.marked[0] != "fda_510k:K9" {
		t.Fatalf("expected confirmed duplicate cached, got %v", cache.marked)
	}
}

func TestCheckerInterruptionAbortsRetry(t *testing.T) {
	inner := &flakyChecker{failures: 100}
	c := NewChecker("fda_510k", inner, nil, quietLogger())
	c.SetRetry(3, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Exists(ctx, "K1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected abort after first attempt, got %d", inner.calls)
	}
}
