package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/metrics"
	"github.com/pagestash/pagestash/internal/pipeline"
	queuememory "github.com/pagestash/pagestash/internal/queue/memory"
)

const samplePage = `<html><head><title>Example Domain</title></head><body>
<h1>Example Domain</h1>
<p>This domain is for use in illustrative examples in documents and reaches well past fifty characters.</p>
</body></html>`

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
}

func (f *countingFetcher) Fetch(_ context.Context, req pipeline.FetchRequest) (pipeline.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return pipeline.FetchResponse{}, errors.New("transient error")
	}
	return pipeline.FetchResponse{
		StatusCode: 200,
		Body:       []byte(samplePage),
		URL:        req.URL,
		Duration:   5 * time.Millisecond,
	}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type stubExtractor struct {
	raw []byte
	err error
}

func (e *stubExtractor) Extract(_ context.Context, _ pipeline.PageText, _ pipeline.Schema) ([]byte, error) {
	return e.raw, e.err
}

func fastRetry() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{maxAttempts: 3, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}
}

func runWorkerOnce(t *testing.T, fetcher pipeline.Fetcher, extractor pipeline.Extractor) pipeline.CrawlResult {
	t.Helper()
	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := queuememory.NewQueue(1)
	results := make(chan pipeline.CrawlResult, 1)
	w := New(q, fetcher, extractor, nil, fastRetry(), pipeline.DefaultSchema(),
		results, nil, nil, Config{}, zap.NewNop())

	require.NoError(t, q.Enqueue(ctx, pipeline.Task{RunID: uuid.NewString(), URL: "https://example.com"}))
	q.Close()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	var result pipeline.CrawlResult
	select {
	case result = <-results:
	case <-ctx.Done():
		t.Fatal("worker did not produce a result")
	}
	<-done
	return result
}

func TestWorkerProducesExtractedOutcome(t *testing.T) {
	t.Parallel()

	result := runWorkerOnce(t, &countingFetcher{},
		&stubExtractor{raw: []byte(`{"title":"Example Domain","summary":"An illustrative page."}`)})

	require.True(t, result.Outcome.OK)
	require.Equal(t, pipeline.PayloadSingle, result.Outcome.Payload.Kind())
	require.Equal(t, "Example Domain", result.Page.Title)
	require.Equal(t, 200, result.StatusCode)
}

func TestWorkerRetriesTransientFetchErrors(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 2}
	result := runWorkerOnce(t, fetcher, &stubExtractor{raw: []byte(`{"title":"x","summary":"y"}`)})

	require.True(t, result.Outcome.OK)
	require.Equal(t, 3, fetcher.count())
}

func TestWorkerReportsFetchFailureVerbatim(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 100}
	result := runWorkerOnce(t, fetcher, nil)

	require.False(t, result.Outcome.OK)
	require.Equal(t, "transient error", result.Outcome.Err)
}

func TestWorkerFallsBackWhenExtractionFails(t *testing.T) {
	t.Parallel()

	result := runWorkerOnce(t, &countingFetcher{}, &stubExtractor{err: errors.New("rate limited")})

	require.True(t, result.Outcome.OK)
	require.Equal(t, pipeline.PayloadSingle, result.Outcome.Payload.Kind())
	candidate := result.Outcome.Payload.Candidates()[0]
	require.Equal(t, "Example Domain", candidate["title"])
	require.NotEmpty(t, candidate["summary"])
}

func TestWorkerFallsBackWithoutExtractor(t *testing.T) {
	t.Parallel()

	result := runWorkerOnce(t, &countingFetcher{}, nil)

	require.True(t, result.Outcome.OK)
	candidate := result.Outcome.Payload.Candidates()[0]
	require.Equal(t, "Example Domain", candidate["title"])
}

func TestWorkerPassesThroughMalformedExtraction(t *testing.T) {
	t.Parallel()

	result := runWorkerOnce(t, &countingFetcher{}, &stubExtractor{raw: []byte(`not json at all`)})

	require.True(t, result.Outcome.OK)
	require.Equal(t, pipeline.PayloadMalformed, result.Outcome.Payload.Kind())
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(1)
	q.Close()
	w := New(q, &countingFetcher{}, nil, nil, fastRetry(), pipeline.DefaultSchema(),
		make(chan pipeline.CrawlResult, 1), nil, nil, Config{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on queue close")
	}
}
