// Package pipeline defines the core types shared across the crawl pipeline:
// fetch outcomes, the record schema, reconciled records, and the interfaces
// the orchestration layer is built against.
package pipeline

import (
	"errors"
	"net/http"
	"time"
)

// ErrPageNotFound is returned by page readers when no row matches.
var ErrPageNotFound = errors.New("page not found")

// FetchOutcome is the raw result of crawling and extracting one URL. The
// payload is untrusted: it is whatever the extraction step produced and must
// be validated before anything is stored.
type FetchOutcome struct {
	URL     string
	OK      bool
	Payload Payload
	Err     string
}

// Record is the validated, schema-conformant result of reconciling one
// candidate payload. A Record only exists when every required field passed
// validation; there are no partial records.
type Record struct {
	// NaturalKey identifies the record for upserts: the source URL, or
	// URL#index when one page yields multiple candidates.
	NaturalKey string
	SourceURL  string
	// Fields maps declared schema field names to coerced values (string or
	// float64). Optional fields that were absent are omitted.
	Fields map[string]any
}

// StringField returns the named field as a string, or "" when absent.
func (r Record) StringField(name string) string {
	v, ok := r.Fields[name].(string)
	if !ok {
		return ""
	}
	return v
}

// Rejection records why one candidate was not accepted.
type Rejection struct {
	URL    string
	Reason string
}

// Counts summarizes a reconciliation pass. Accepted+Rejected always equals
// Total, counted per candidate rather than per URL.
type Counts struct {
	Accepted int
	Rejected int
	Total    int
}

// Report is the sole output of Reconcile. Accepted and Rejected preserve
// input order.
type Report struct {
	Accepted []Record
	Rejected []Rejection
	Counts   Counts
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	RunID         string
	URL           string
	Headers       http.Header
	RespectRobots bool
}

// FetchResponse is returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageText is the readable shape of a fetched page, fed to the extractor and
// the storage content column.
type PageText struct {
	URL     string
	Title   string
	Text    string
	Excerpt string
}

// CrawlResult pairs a FetchOutcome with the page artifacts the storage step
// needs (excerpt for the content column, full text for the blob store).
type CrawlResult struct {
	Outcome    FetchOutcome
	Page       PageText
	StatusCode int
	Duration   time.Duration
}

// PageRow mirrors one row of the pages table.
type PageRow struct {
	ID         int64
	NaturalKey string
	URL        string
	Title      string
	Summary    string
	Content    string
	BlobURI    string
	CrawledAt  time.Time
}

// Task is one unit of crawl work consumed by a worker.
type Task struct {
	RunID   string
	URL     string
	Attempt int
}
