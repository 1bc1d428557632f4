// Package scrape reads the carrier's public tracking page. It is the
// primary tracking source; the structured status call is the fallback when
// the page has no rows yet.
package scrape

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// Event is one row of the tracking table, kept in the carrier's own textual
// form.
type Event struct {
	Date     string
	Time     string
	Location string
	Status   string
}

type Fetcher struct {
	pageURL string
	httpc   *http.Client
}

func New(pageURL string) *Fetcher {
	return &Fetcher{
		pageURL: pageURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch loads and parses the tracking page for one tracking number.
// A page without result rows is a valid empty answer (the carrier simply
// has nothing yet), not an error.
func (f *Fetcher) Fetch(ctx context.Context, trackingNo string) ([]Event, error) {
	u, err := url.Parse(f.pageURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse page url")
	}
	q := u.Query()
	q.Set("sid1", trackingNo)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch tracking page")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("tracking page http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse tracking page")
	}
	return parseRows(doc), nil
}

func parseRows(doc *goquery.Document) []Event {
	events := []Event{}
	doc.Find("table.detail_off tbody tr, table.table_col tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		ev := Event{
			Date:     cellText(cells.Eq(0)),
			Time:     cellText(cells.Eq(1)),
			Location: cellText(cells.Eq(2)),
			Status:   statusText(cells.Eq(3)),
		}
		if ev.Date == "" && ev.Status == "" {
			return
		}
		events = append(events, ev)
	})
	return events
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// statusText handles both status cell shapes: plain text, or an anchor whose
// inline script call carries the status as its first quoted argument, e.g.
// href="javascript:showDetail('배달완료','...')".
func statusText(cell *goquery.Selection) string {
	a := cell.Find("a")
	if a.Length() > 0 {
		if href, ok := a.Attr("href"); ok {
			if v := scriptArg(href); v != "" {
				return v
			}
		}
		if v := cellText(a); v != "" {
			return v
		}
	}
	return cellText(cell)
}

func scriptArg(href string) string {
	i := strings.Index(href, "('")
	if i < 0 {
		return ""
	}
	rest := href[i+2:]
	j := strings.Index(rest, "'")
	if j < 0 {
		return ""
	}
	return rest[:j]
}
