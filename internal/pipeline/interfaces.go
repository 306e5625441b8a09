package pipeline

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns page text into a raw structured payload described by the
// schema. The returned bytes are JSON of unknown shape; callers must not
// trust it to actually match the schema.
type Extractor interface {
	Extract(ctx context.Context, page PageText, schema Schema) ([]byte, error)
}

// PageReader exposes the read-only query surface over the pages table.
type PageReader interface {
	Ping(ctx context.Context) error
	Latest(ctx context.Context, limit int) ([]PageRow, error)
	FindByURL(ctx context.Context, url string) (PageRow, error)
	SearchTitle(ctx context.Context, query string, limit int) ([]PageRow, error)
	SearchSummary(ctx context.Context, query string, limit int) ([]PageRow, error)
	Count(ctx context.Context) (int64, error)
	WithSummaries(ctx context.Context, limit int) ([]PageRow, error)
	GetByID(ctx context.Context, id int64) (PageRow, error)
}

// PageWriter persists reconciled records. Upsert is keyed on NaturalKey:
// writing the same key twice replaces the prior row, never duplicates it.
type PageWriter interface {
	Upsert(ctx context.Context, row PageRow) error
}

// PageStore combines the read and write surfaces over one backing table.
type PageStore interface {
	PageReader
	PageWriter
	Close()
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Hasher computes digests for blob paths and deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
