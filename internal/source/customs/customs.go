// Package customs crawls CBP CROSS customs rulings. The primary path hits
// the site's JSON search API; when the API is fronted by a bot challenge the
// fetcher falls back to rendering the search page headless and reading the
// result table out of the DOM.
package customs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"regcrawl/internal/crawler"
	"regcrawl/internal/records"
)

const DefaultBaseURL = "https://rulings.cbp.gov"

// PageCap is the largest pageSize the CROSS search API accepts.
const PageCap = 100

const Type = "cbp_rulings"

type Source struct {
	baseURL     string
	allowedHost string
	// headless enables the chromedp fallback; off in tests.
	headless bool
	logger   *log.Logger
}

func NewSource(baseURL string, headless bool, logger *log.Logger) *Source {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		baseURL:     strings.TrimRight(baseURL, "/"),
		allowedHost: hostOf(baseURL),
		headless:    headless,
		logger:      logger,
	}
}

type rulingWire struct {
	RulingNumber   string   `json:"rulingNumber"`
	RulingDate     string   `json:"rulingDate"`
	Subject        string   `json:"subject"`
	CollectionName string   `json:"collection"`
	Tariffs        []string `json:"tariffs"`
}

type searchResponse struct {
	Rulings []rulingWire `json:"rulings"`
	Total   int          `json:"total"`
}

func (s *Source) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	if limit <= 0 {
		limit = 30
	}
	// CROSS pages are one-based.
	pageNo := offset/limit + 1

	resp, err := s.fetchAPI(ctx, spec.SearchTerm, pageNo, limit)
	if err != nil {
		if !s.headless {
			return crawler.RawPage{}, err
		}
		s.logger.Printf("customs | api fetch failed, going headless: %v", err)
		resp, err = s.fetchHeadless(ctx, spec.SearchTerm, pageNo, limit)
		if err != nil {
			return crawler.RawPage{}, err
		}
	}

	page := crawler.RawPage{Records: make([]crawler.RawRecord, 0, len(resp.Rulings))}
	for _, r := range resp.Rulings {
		page.Records = append(page.Records, r)
	}
	if resp.Total > 0 {
		total := resp.Total
		page.TotalAvailable = &total
	}
	return page, nil
}

func (s *Source) fetchAPI(ctx context.Context, term string, pageNo, pageSize int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("term", strings.TrimSpace(term))
	q.Set("collection", "ALL")
	q.Set("commodityGrouping", "ALL")
	q.Set("sortBy", "DATE_DESC")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(pageNo))
	apiURL := s.baseURL + "/api/search?" + q.Encode()

	c := colly.NewCollector(colly.AllowedDomains(s.allowedHost))
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: 300 * time.Millisecond})

	var body []byte
	var reqErr error

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json, text/plain, */*")
		r.Headers.Set("User-Agent", "regcrawl/0.1")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Visit(apiURL); err != nil {
		return nil, fmt.Errorf("customs api: %w", err)
	}
	c.Wait()
	if reqErr != nil {
		return nil, fmt.Errorf("customs api: %w", reqErr)
	}

	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		// Challenge pages come back as HTML.
		return nil, fmt.Errorf("customs api: non-json response (%d bytes)", len(body))
	}
	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("customs api: decode: %w", err)
	}
	return &out, nil
}

func (s *Source) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	w, ok := raw.(rulingWire)
	if !ok {
		return crawler.NormalizedRecord{}, fmt.Errorf("customs record: unexpected type %T", raw)
	}
	rec := records.CustomsRuling{
		RulingNumber: strings.TrimSpace(w.RulingNumber),
		RulingDate:   parseRulingDate(w.RulingDate),
		Title:        w.Subject,
		Category:     w.CollectionName,
		TariffNumber: strings.Join(w.Tariffs, ", "),
		DataSource:   "CBP_CROSS",
		CrawlTime:    time.Now(),
	}
	if rec.RulingNumber != "" {
		rec.RulingURL = s.baseURL + "/ruling/" + rec.RulingNumber
	}
	return crawler.NormalizedRecord{NaturalKey: rec.RulingNumber, Payload: rec}, nil
}

// Roles: CROSS has a single search box; keywords go in as the whole term.
func Roles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "term", Query: func(kw string) string { return kw }},
	}
}

const DefaultQuery = "medical device"

var rulingDatePatterns = []string{"2006-01-02", "01/02/2006", "Jan 2, 2006"}

func parseRulingDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// The API sometimes appends a time component.
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	for _, p := range rulingDatePatterns {
		if t, err := time.Parse(p, s); err == nil {
			return &t
		}
	}
	return nil
}

func hostOf(base string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "rulings.cbp.gov"
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}
