package customs

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"regcrawl/internal/crawler"
	"regcrawl/internal/records"
)

const apiResponse = `{
	"total": 42,
	"rulings": [
		{
			"rulingNumber": "N345678",
			"rulingDate": "2024-05-10T00:00:00",
			"subject": "Classification of a surgical stapler",
			"collection": "NY",
			"tariffs": ["9018.90.8000", "8205.51.3030"]
		},
		{
			"rulingNumber": "H123456",
			"rulingDate": "2023-12-01",
			"subject": "Infusion pump tubing",
			"collection": "HQ",
			"tariffs": []
		}
	]
}`

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestFetchPageParsesAPIResponse(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		io.WriteString(w, apiResponse)
	}))
	defer srv.Close()

	s := NewSource(srv.URL, false, quietLogger())
	page, err := s.FetchPage(context.Background(), crawler.JobSpec{SearchTerm: "stapler"}, 60, 30)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(page.Records) != 2 {
		t.Fatalf("expected 2 rulings, got %d", len(page.Records))
	}
	if page.TotalAvailable == nil || *page.TotalAvailable != 42 {
		t.Errorf("total not propagated: %v", page.TotalAvailable)
	}

	// offset 60 with page size 30 is the third one-based page
	q, _ := http.NewRequest(http.MethodGet, "?"+gotQuery, nil)
	if q.URL.Query().Get("page") != "3" || q.URL.Query().Get("pageSize") != "30" {
		t.Errorf("wrong paging query: %s", gotQuery)
	}
	if q.URL.Query().Get("term") != "stapler" {
		t.Errorf("term not forwarded: %s", gotQuery)
	}
}

func TestNormalizeRuling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, apiResponse)
	}))
	defer srv.Close()

	s := NewSource(srv.URL, false, quietLogger())
	page, err := s.FetchPage(context.Background(), crawler.JobSpec{}, 0, 30)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	nr, err := s.Normalize(page.Records[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if nr.NaturalKey != "N345678" {
		t.Errorf("natural key = %q", nr.NaturalKey)
	}
	rec := nr.Payload.(records.CustomsRuling)
	if rec.TariffNumber != "9018.90.8000, 8205.51.3030" {
		t.Errorf("tariffs = %q", rec.TariffNumber)
	}
	if rec.RulingDate == nil || rec.RulingDate.Year() != 2024 {
		t.Errorf("ruling date not parsed: %v", rec.RulingDate)
	}
	if rec.RulingURL != srv.URL+"/ruling/N345678" {
		t.Errorf("ruling url = %q", rec.RulingURL)
	}
}

func TestFetchPageRejectsChallengeHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>Checking your browser</body></html>")
	}))
	defer srv.Close()

	s := NewSource(srv.URL, false, quietLogger())
	if _, err := s.FetchPage(context.Background(), crawler.JobSpec{}, 0, 30); err == nil {
		t.Fatalf("expected error for html challenge body without headless fallback")
	}
}

func TestNormalizeRejectsForeignRecord(t *testing.T) {
	s := NewSource("", false, quietLogger())
	if _, err := s.Normalize("nope"); err == nil {
		t.Fatalf("expected error for foreign record type")
	}
}
