package neows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

// ErrEmptyID rejects lookups without a reference id.
var ErrEmptyID = errors.New("neows: empty reference id")

// Lookup fetches the full detail record for id.
func (c *Client) Lookup(ctx context.Context, id string) (neo.DetailRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return neo.DetailRecord{}, ErrEmptyID
	}
	body, err := c.fetcher.Fetch(ctx, c.baseURL+"/neo/"+url.PathEscape(id), nil)
	if err != nil {
		return neo.DetailRecord{}, err
	}
	var detail neo.DetailRecord
	if err := json.Unmarshal(body, &detail); err != nil {
		return neo.DetailRecord{}, fmt.Errorf("decode detail %s: %w", id, err)
	}
	return detail, nil
}

// LookupRaw returns the provider's detail body untouched.
func (c *Client) LookupRaw(ctx context.Context, id string) (json.RawMessage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	return c.fetcher.Fetch(ctx, c.baseURL+"/neo/"+url.PathEscape(id), nil)
}
