package customs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// fetchHeadless renders the search page in headless Chrome and issues the
// search API call from inside the page, which carries the challenge cookies
// a plain HTTP client does not have.
func (s *Source) fetchHeadless(ctx context.Context, term string, pageNo, pageSize int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("collection", "ALL")
	q.Set("sortBy", "DATE_DESC")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(pageNo))
	searchURL := s.baseURL + "/search?" + q.Encode()
	apiPath := "/api/search?" + q.Encode() + "&commodityGrouping=ALL"

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	reqCtx, reqCancel := context.WithTimeout(browserCtx, 45*time.Second)
	defer reqCancel()

	var raw string
	err := chromedp.Run(reqCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.EvaluateAsDevTools(
			fmt.Sprintf(`fetch(%q).then(r => r.text())`, apiPath),
			&raw,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("customs headless: %w", err)
	}

	var out searchResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("customs headless: decode: %w", err)
	}
	return &out, nil
}
