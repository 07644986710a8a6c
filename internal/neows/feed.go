package neows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/JakeFAU/neows-archiver/internal/neo"
	"github.com/JakeFAU/neows-archiver/internal/normalize"
)

const (
	dateLayout = "2006-01-02"
	// MaxFeedSpan is the widest window the feed endpoint accepts.
	MaxFeedSpan = 7 * 24 * time.Hour
)

type feedResponse struct {
	ElementCount     int                            `json:"element_count"`
	NearEarthObjects map[string][]json.RawMessage `json:"near_earth_objects"`
}

// ValidateWindow checks a feed window of YYYY-MM-DD dates.
func ValidateWindow(start, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start_date %q: %v", neo.ErrInvalidWindow, start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end_date %q: %v", neo.ErrInvalidWindow, end, err)
	}
	if e.Before(s) {
		return fmt.Errorf("%w: end_date %s precedes start_date %s", neo.ErrInvalidWindow, end, start)
	}
	if e.Sub(s) > MaxFeedSpan {
		return fmt.Errorf("%w: window %s..%s exceeds 7 days", neo.ErrInvalidWindow, start, end)
	}
	return nil
}

// HazardousInWindow returns the potentially hazardous objects approaching in
// [start, end], each looked up and normalized with the feed's approaches, and
// ordered by nearest miss distance. Records with no usable distance sort last.
// Any lookup failure fails the whole query.
func (c *Client) HazardousInWindow(ctx context.Context, start, end string) ([]neo.NormalizedRecord, error) {
	if err := ValidateWindow(start, end); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("start_date", start)
	params.Set("end_date", end)

	body, err := c.fetcher.Fetch(ctx, c.baseURL+"/feed", params)
	if err != nil {
		return nil, err
	}
	var resp feedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode feed %s..%s: %w", start, end, err)
	}

	lookup := c.lookuper
	if lookup == nil {
		lookup = c
	}

	dates := make([]string, 0, len(resp.NearEarthObjects))
	for date := range resp.NearEarthObjects {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var out []neo.NormalizedRecord
	for _, date := range dates {
		for _, raw := range resp.NearEarthObjects[date] {
			var summary neo.SummaryRecord
			if json.Unmarshal(raw, &summary) != nil || !summary.PotentiallyHazardous {
				continue
			}
			id := summary.ReferenceID()
			if id == "" {
				continue
			}
			detail, err := lookup.Lookup(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("lookup %s: %w", id, err)
			}
			out = append(out, normalize.Record(detail, summary.Approaches))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return normalize.MinMissKilometers(out[i]) < normalize.MinMissKilometers(out[j])
	})
	return out, nil
}
