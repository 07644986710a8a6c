// Package neows exposes the NeoWs endpoints (browse, lookup, feed) on top of
// a neo.Fetcher.
package neows

import (
	"errors"
	"strings"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

const (
	// DefaultBaseURL is the public NeoWs REST root.
	DefaultBaseURL = "https://api.nasa.gov/neo/rest/v1"
	// DefaultPageSize is the number of records requested per browse page.
	DefaultPageSize = 20
)

// Client issues NeoWs requests through a shared fetcher so every call shares
// the same retry and rate-limit discipline.
type Client struct {
	fetcher  neo.Fetcher
	lookuper neo.Lookuper
	baseURL  string
	pageSize int
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the provider root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithPageSize overrides the browse page size.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// New builds a Client around fetcher.
func New(fetcher neo.Fetcher, opts ...Option) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("neows: fetcher is required")
	}
	c := &Client{
		fetcher:  fetcher,
		baseURL:  DefaultBaseURL,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithLookuper returns a copy of c whose feed queries resolve details through
// l, typically a cache in front of c itself.
func (c *Client) WithLookuper(l neo.Lookuper) *Client {
	cp := *c
	cp.lookuper = l
	return &cp
}

// PageSize reports the configured browse page size.
func (c *Client) PageSize() int {
	return c.pageSize
}
