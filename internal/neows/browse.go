package neows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

type browseResponse struct {
	Page struct {
		Size          int  `json:"size"`
		TotalElements int  `json:"total_elements"`
		TotalPages    *int `json:"total_pages"`
		Number        int  `json:"number"`
	} `json:"page"`
	NearEarthObjects []json.RawMessage `json:"near_earth_objects"`
}

// BrowsePage fetches one page of the catalog. A missing near_earth_objects
// array decodes as an empty page. An element that is not an object is kept
// as a record without an id so the crawl skips it.
func (c *Client) BrowsePage(ctx context.Context, page int) (neo.CatalogPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(c.pageSize))

	body, err := c.fetcher.Fetch(ctx, c.baseURL+"/neo/browse", params)
	if err != nil {
		return neo.CatalogPage{}, err
	}

	var resp browseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return neo.CatalogPage{}, fmt.Errorf("decode browse page %d: %w", page, err)
	}
	records := make([]neo.SummaryRecord, len(resp.NearEarthObjects))
	for i, raw := range resp.NearEarthObjects {
		if err := json.Unmarshal(raw, &records[i]); err != nil {
			records[i] = neo.SummaryRecord{}
		}
	}
	return neo.CatalogPage{
		PageIndex:     page,
		TotalPages:    resp.Page.TotalPages,
		TotalElements: resp.Page.TotalElements,
		Records:       records,
	}, nil
}
