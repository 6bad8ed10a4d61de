// Package openfda talks to the openFDA device endpoints. One shared Client
// handles the query protocol (api_key, search/limit/skip, the NOT_FOUND
// "no matches" envelope); each source file contributes a fetcher and a
// normalizer for one endpoint.
package openfda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"regcrawl/internal/crawler"
)

const DefaultBaseURL = "https://api.fda.gov"

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *log.Logger
}

func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type Response struct {
	Meta    Meta              `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

type Meta struct {
	Results MetaResults `json:"results"`
}

type MetaResults struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// noMatches reports the envelope openFDA returns for a search with zero
// results. Callers treat it as a clean empty page, not a failure.
func (e apiError) noMatches() bool {
	return e.Error.Code == "NOT_FOUND" && e.Error.Message == "No matches found!"
}

// Fetch performs one request against an openFDA endpoint. It does not retry;
// the crawl controller owns the retry policy.
func (c *Client) Fetch(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	reqURL := c.baseURL + endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfda %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("openfda %s: read body: %w", endpoint, err)
	}

	// openFDA returns the error envelope with a 404 status; older mirrors
	// have been seen returning it with 200. Check the body either way.
	var apiErr apiError
	if jerr := json.Unmarshal(body, &apiErr); jerr == nil && apiErr.Error.Code != "" {
		if apiErr.noMatches() {
			return &Response{Results: nil}, nil
		}
		return nil, fmt.Errorf("openfda %s: api error %s: %s", endpoint, apiErr.Error.Code, apiErr.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openfda %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openfda %s: decode: %w", endpoint, err)
	}
	return &out, nil
}

// fetchPage runs the shared skip/limit pagination protocol for one endpoint.
// dateField, when the spec carries a date range, is ANDed onto the search
// expression as a range filter.
func (c *Client) fetchPage(ctx context.Context, endpoint, dateField string, spec crawler.JobSpec, offset, limit int) (crawler.RawPage, error) {
	query := url.Values{}
	if search := searchExpr(spec, dateField); search != "" {
		query.Set("search", search)
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(offset))

	resp, err := c.Fetch(ctx, endpoint, query)
	if err != nil {
		return crawler.RawPage{}, err
	}

	page := crawler.RawPage{Records: make([]crawler.RawRecord, 0, len(resp.Results))}
	for _, raw := range resp.Results {
		page.Records = append(page.Records, raw)
	}
	if resp.Meta.Results.Total > 0 {
		total := resp.Meta.Results.Total
		page.TotalAvailable = &total
	}
	return page, nil
}

func searchExpr(spec crawler.JobSpec, dateField string) string {
	search := strings.TrimSpace(spec.SearchTerm)
	from := strings.TrimSpace(spec.DateFrom)
	to := strings.TrimSpace(spec.DateTo)
	if dateField == "" || from == "" {
		return search
	}
	if to == "" {
		to = "now"
	}
	rangeExpr := fmt.Sprintf("%s:[%s TO %s]", dateField, from, to)
	if search == "" {
		return rangeExpr
	}
	return search + " AND " + rangeExpr
}

var datePatterns = []string{"2006-01-02", "20060102", "01/02/2006"}

// parseDate tolerates the date shapes the openFDA endpoints actually emit.
// Unparseable or empty input yields nil rather than an error.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, p := range datePatterns {
		if t, err := time.Parse(p, s); err == nil {
			return &t
		}
	}
	return nil
}

func rawJSON(raw crawler.RawRecord) (json.RawMessage, error) {
	msg, ok := raw.(json.RawMessage)
	if !ok {
		return nil, errors.New("record is not raw openfda json")
	}
	return msg, nil
}
