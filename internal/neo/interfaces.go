package neo

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"time"
)

// Fetcher performs a GET against a provider endpoint and returns the JSON body.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

// Catalog walks the browse endpoint page by page.
type Catalog interface {
	BrowsePage(ctx context.Context, page int) (CatalogPage, error)
}

// Lookuper fetches a full detail record by reference id.
type Lookuper interface {
	Lookup(ctx context.Context, id string) (DetailRecord, error)
}

// Archive is the idempotent persistent store of normalized records.
type Archive interface {
	// Insert stores rec unless its id already exists. A duplicate or an empty
	// id reports inserted=false with a nil error.
	Insert(ctx context.Context, rec NormalizedRecord) (bool, error)
	Get(ctx context.Context, id string) (ArchivedRow, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes "record archived" notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes payload digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and blocks for backoff and rate limiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
