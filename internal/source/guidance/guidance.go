// Package guidance scrapes the FDA guidance-documents search listing. The
// listing is plain HTML with numbered pages, so pagination maps onto the
// controller's offset/limit protocol directly.
package guidance

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"regcrawl/internal/crawler"
	"regcrawl/internal/records"
)

const DefaultBaseURL = "https://www.fda.gov/medical-devices/device-advice-comprehensive-regulatory-assistance/guidance-documents-medical-devices-and-radiation-emitting-products"

// PageCap is the row count one listing page carries; requesting more per
// batch cannot be honored by the site.
const PageCap = 25

const Type = "fda_guidance"

type Source struct {
	baseURL     string
	allowedHost string
	logger      *log.Logger
}

func NewSource(baseURL string, logger *log.Logger) *Source {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		baseURL:     strings.TrimRight(baseURL, "/"),
		allowedHost: hostOf(baseURL),
		logger:      logger,
	}
}

// row is the raw shape handed to the normalizer, one table row per document.
type row struct {
	Title        string
	DocumentURL  string
	Topic        string
	GuidanceType string
	Status       string
	IssueDate    string
}

func (s *Source) FetchPage(ctx context.Context, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	if limit <= 0 {
		limit = PageCap
	}
	pageURL := s.pageURL(spec.SearchTerm, offset/limit)

	c := colly.NewCollector(colly.AllowedDomains(s.allowedHost))
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: 300 * time.Millisecond})

	var rows []crawler.RawRecord
	hasNext := false

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "regcrawl/0.1")
	})

	c.OnHTML("table tbody tr", func(e *colly.HTMLElement) {
		link := e.DOM.Find("td a").First()
		href, _ := link.Attr("href")
		r := row{
			Title:        strings.TrimSpace(link.Text()),
			DocumentURL:  strings.TrimSpace(e.Request.AbsoluteURL(href)),
			IssueDate:    strings.TrimSpace(e.ChildText("td:nth-of-type(2)")),
			Topic:        strings.TrimSpace(e.ChildText("td:nth-of-type(3)")),
			GuidanceType: strings.TrimSpace(e.ChildText("td:nth-of-type(4)")),
			Status:       strings.TrimSpace(e.ChildText("td:nth-of-type(5)")),
		}
		if r.DocumentURL == "" {
			return
		}
		rows = append(rows, r)
	})

	c.OnHTML("a[rel=next], li.pager__item--next a", func(*colly.HTMLElement) {
		hasNext = true
	})

	var reqErr error
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if err := ctx.Err(); err != nil {
		return crawler.RawPage{}, err
	}
	if err := c.Visit(pageURL); err != nil {
		return crawler.RawPage{}, fmt.Errorf("guidance page %s: %w", pageURL, err)
	}
	c.Wait()
	if reqErr != nil {
		return crawler.RawPage{}, fmt.Errorf("guidance page %s: %w", pageURL, reqErr)
	}

	return crawler.RawPage{Records: rows, IsLastPage: len(rows) > 0 && !hasNext}, nil
}

func (s *Source) pageURL(searchTerm string, page int) string {
	q := url.Values{}
	if kw := strings.TrimSpace(searchTerm); kw != "" {
		q.Set("search_api_fulltext", kw)
	}
	if page > 0 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	if len(q) == 0 {
		return s.baseURL
	}
	return s.baseURL + "?" + q.Encode()
}

func (s *Source) Normalize(raw crawler.RawRecord) (crawler.NormalizedRecord, error) {
	r, ok := raw.(row)
	if !ok {
		return crawler.NormalizedRecord{}, fmt.Errorf("guidance record: unexpected type %T", raw)
	}
	rec := records.GuidanceDocument{
		Title:        r.Title,
		DocumentURL:  r.DocumentURL,
		Topic:        r.Topic,
		GuidanceType: r.GuidanceType,
		Status:       r.Status,
		IssueDate:    parseIssueDate(r.IssueDate),
		DataSource:   "FDA_GUIDANCE",
		CrawlTime:    time.Now(),
	}
	return crawler.NormalizedRecord{NaturalKey: rec.DocumentURL, Payload: rec}, nil
}

// Roles: the guidance search has a single fulltext box, no per-field slots.
func Roles() []crawler.FieldRole {
	return []crawler.FieldRole{
		{Name: "fulltext", Query: func(kw string) string { return kw }},
	}
}

// DefaultQuery: an empty search crawls the whole listing.
const DefaultQuery = ""

var issueDatePatterns = []string{"01/02/2006", "2006-01-02", "January 2, 2006"}

func parseIssueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, p := range issueDatePatterns {
		if t, err := time.Parse(p, s); err == nil {
			return &t
		}
	}
	return nil
}

func hostOf(base string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "www.fda.gov"
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}
