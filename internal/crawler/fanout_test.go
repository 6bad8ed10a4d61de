package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// specFetcher keys its fake dataset off the search term so different role
// searches yield distinct records, and fails on demand for one term.
type specFetcher struct {
	perTerm  int
	failTerm string
	terms    []string
}

func (f *specFetcher) FetchPage(_ context.Context, spec JobSpec, offset, limit int) (RawPage, error) {
	f.terms = append(f.terms, spec.SearchTerm)
	if f.failTerm != "" && strings.Contains(spec.SearchTerm, f.failTerm) {
		return RawPage{}, errors.New("upstream exploded")
	}
	page := RawPage{}
	for i := offset; i < f.perTerm && len(page.Records) < limit; i++ {
		page.Records = append(page.Records, rec{key: fmt.Sprintf("%s-%d", spec.SearchTerm, i)})
	}
	return page, nil
}

func deviceNameRole() FieldRole {
	return FieldRole{Name: "device_name", Query: func(kw string) string { return "device_name:" + kw }}
}

func applicantRole() FieldRole {
	return FieldRole{Name: "applicant", Query: func(kw string) string { return "applicant:" + kw }}
}

func newTestFanout(fetcher PageFetcher, store *memStore, roles []FieldRole) *Fanout {
	opts := fastOptions()
	c := NewController(opts, fetcher, fakeNormalizer{}, store, store, &memCheckpoints{}, testLogger())
	f := NewFanout(c, roles, "device_name:medical", testLogger())
	f.RoleDelay = 0
	return f
}

func TestFanoutIsolatesFailures(t *testing.T) {
	fetcher := &specFetcher{perTerm: 10, failTerm: "alpha"}
	f := newTestFanout(fetcher, newMemStore(), []FieldRole{deviceNameRole()})

	res := f.Run(context.Background(), []string{"alpha", "beta"}, JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.KeywordsProcessed != 2 {
		t.Fatalf("expected both keywords processed, got %d", res.KeywordsProcessed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(res.Errors))
	}
	if res.Errors[0].Keyword != "alpha" {
		t.Fatalf("expected error recorded for alpha, got %q", res.Errors[0].Keyword)
	}
	if res.TotalSaved != 10 {
		t.Fatalf("expected beta's 10 records saved, got %d", res.TotalSaved)
	}
}

func TestFanoutSkipsBlankKeywords(t *testing.T) {
	fetcher := &specFetcher{perTerm: 3}
	f := newTestFanout(fetcher, newMemStore(), []FieldRole{deviceNameRole()})

	res := f.Run(context.Background(), []string{"", "   ", "gamma"}, JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.KeywordsProcessed != 1 {
		t.Fatalf("expected 1 keyword processed, got %d", res.KeywordsProcessed)
	}
	if len(fetcher.terms) != 1 || fetcher.terms[0] != "device_name:gamma" {
		t.Fatalf("unexpected searches: %v", fetcher.terms)
	}
}

func TestFanoutFallsBackToDefaultQuery(t *testing.T) {
	fetcher := &specFetcher{perTerm: 5}
	f := newTestFanout(fetcher, newMemStore(), []FieldRole{deviceNameRole()})

	res := f.Run(context.Background(), nil, JobSpec{MaxRecords: -1, BatchSize: 50})

	if len(fetcher.terms) != 1 || fetcher.terms[0] != "device_name:medical" {
		t.Fatalf("expected default query search, got %v", fetcher.terms)
	}
	if res.TotalSaved != 5 {
		t.Fatalf("expected 5 saved from default search, got %d", res.TotalSaved)
	}
}

func TestFanoutRunsEveryRolePerKeyword(t *testing.T) {
	fetcher := &specFetcher{perTerm: 4}
	f := newTestFanout(fetcher, newMemStore(), []FieldRole{deviceNameRole(), applicantRole()})

	res := f.Run(context.Background(), []string{"delta"}, JobSpec{MaxRecords: -1, BatchSize: 50})

	want := []string{"device_name:delta", "applicant:delta"}
	if len(fetcher.terms) != len(want) {
		t.Fatalf("expected %d searches, got %v", len(want), fetcher.terms)
	}
	for i, term := range want {
		if fetcher.terms[i] != term {
			t.Fatalf("search %d: want %q, got %q", i, term, fetcher.terms[i])
		}
	}
	if res.TotalSaved != 8 {
		t.Fatalf("expected 4 records per role, got %d total", res.TotalSaved)
	}
	if res.TotalPages == 0 {
		t.Fatalf("expected page count aggregation")
	}
}

func TestFanoutStopsOnInterruption(t *testing.T) {
	fetcher := &specFetcher{perTerm: 2}
	f := newTestFanout(fetcher, newMemStore(), []FieldRole{deviceNameRole()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.Run(ctx, []string{"one", "two", "three"}, JobSpec{MaxRecords: -1, BatchSize: 50})

	if res.TotalSaved != 0 {
		t.Fatalf("expected no work after cancellation, got %d saved", res.TotalSaved)
	}
}
