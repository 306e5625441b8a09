// Package runner orchestrates one crawl run end to end: fan the URL batch out
// to workers, reconcile the raw outcomes against the record schema, and
// persist the accepted records.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/dispatcher"
	"github.com/pagestash/pagestash/internal/metrics"
	"github.com/pagestash/pagestash/internal/pipeline"
	"github.com/pagestash/pagestash/internal/progress"
	queuememory "github.com/pagestash/pagestash/internal/queue/memory"
	"github.com/pagestash/pagestash/internal/worker"
)

// Config controls a crawl run.
type Config struct {
	Concurrency int
	// MaxRetries is the number of fetch retries after the first attempt;
	// zero keeps the worker policy defaults.
	MaxRetries int
	// QueueDepth bounds the task queue; workers drain it while remaining
	// URLs wait to enqueue (default 64).
	QueueDepth  int
	Topic       string
	BlobPrefix  string
	ContentType string
	Worker      worker.Config
}

// Runner executes crawl runs.
type Runner struct {
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	limiter   worker.RateWaiter
	store     pipeline.PageWriter
	blob      pipeline.BlobStore
	publisher pipeline.Publisher
	hasher    pipeline.Hasher
	clock     pipeline.Clock
	ids       pipeline.IDGenerator
	emitter   progress.Emitter
	schema    pipeline.Schema
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	fetcher pipeline.Fetcher,
	extractor pipeline.Extractor,
	limiter worker.RateWaiter,
	store pipeline.PageWriter,
	blob pipeline.BlobStore,
	publisher pipeline.Publisher,
	hasher pipeline.Hasher,
	clock pipeline.Clock,
	ids pipeline.IDGenerator,
	emitter progress.Emitter,
	schema pipeline.Schema,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/plain; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		store:     store,
		blob:      blob,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		emitter:   emitter,
		schema:    schema,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run crawls the URL batch and returns the reconciliation report. Only a
// misconfigured schema aborts the run; individual page failures surface as
// rejections inside the report.
func (r *Runner) Run(ctx context.Context, urls []string) (pipeline.Report, error) {
	if err := r.schema.Validate(); err != nil {
		return pipeline.Report{}, fmt.Errorf("invalid record schema: %w", err)
	}

	runID, err := r.ids.NewID()
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("generate run id: %w", err)
	}
	start := r.now()
	r.emit(runID, progress.Event{Stage: progress.StageRunStart})
	r.logger.Info("crawl run started", zap.String("run_id", runID), zap.Int("urls", len(urls)))

	resultsByURL, err := r.crawl(ctx, runID, urls)
	if err != nil {
		r.emit(runID, progress.Event{Stage: progress.StageRunError, Note: err.Error(), Dur: r.now().Sub(start)})
		return pipeline.Report{}, err
	}

	outcomes := make([]pipeline.FetchOutcome, 0, len(urls))
	for _, u := range urls {
		res, ok := resultsByURL[u]
		if !ok {
			res = pipeline.CrawlResult{Outcome: pipeline.FetchOutcome{URL: u, Err: "no result produced"}}
		}
		outcomes = append(outcomes, res.Outcome)
	}

	report, err := pipeline.Reconcile(outcomes, r.schema)
	if err != nil {
		r.emit(runID, progress.Event{Stage: progress.StageRunError, Note: err.Error(), Dur: r.now().Sub(start)})
		return pipeline.Report{}, err
	}
	metrics.ObserveRecords(report.Counts.Accepted, report.Counts.Rejected)
	r.emit(runID, progress.Event{
		Stage:    progress.StageReconciled,
		Accepted: int64(report.Counts.Accepted),
		Rejected: int64(report.Counts.Rejected),
	})

	persistErr := r.persist(ctx, runID, report, resultsByURL)

	r.emit(runID, progress.Event{Stage: progress.StageRunDone, Dur: r.now().Sub(start)})
	r.logger.Info("crawl run finished",
		zap.String("run_id", runID),
		zap.Int("accepted", report.Counts.Accepted),
		zap.Int("rejected", report.Counts.Rejected),
		zap.Duration("dur", r.now().Sub(start)),
	)
	return report, persistErr
}

// crawl fans the batch out to a worker pool and gathers one result per URL.
// The queue is bounded at QueueDepth, so workers start before enqueueing and
// large batches backpressure the producer instead of growing the queue.
func (r *Runner) crawl(ctx context.Context, runID string, urls []string) (map[string]pipeline.CrawlResult, error) {
	queue := queuememory.NewQueue(r.cfg.QueueDepth)
	results := make(chan pipeline.CrawlResult, len(urls))

	var retry *worker.ExponentialRetryPolicy
	if r.cfg.MaxRetries > 0 {
		retry = worker.NewExponentialRetryPolicy().WithMaxRetries(r.cfg.MaxRetries)
	}
	concurrency := min(r.cfg.Concurrency, max(len(urls), 1))
	workers := make([]*worker.Worker, 0, concurrency)
	for range concurrency {
		workers = append(workers, worker.New(
			queue, r.fetcher, r.extractor, r.limiter, retry,
			r.schema, results, r.emitter, r.clock, r.cfg.Worker, r.logger,
		))
	}

	done := make(chan struct{})
	go func() {
		dispatcher.New(queue, workers).Run(ctx)
		close(done)
	}()

	for _, u := range urls {
		if err := queue.Enqueue(ctx, pipeline.Task{RunID: runID, URL: u}); err != nil {
			queue.Close()
			<-done
			return nil, fmt.Errorf("enqueue task: %w", err)
		}
	}
	queue.Close()

	byURL := make(map[string]pipeline.CrawlResult, len(urls))
	expected := uniqueCount(urls)
	for len(byURL) < expected {
		select {
		case res := <-results:
			byURL[res.Outcome.URL] = res
		case <-ctx.Done():
			return nil, fmt.Errorf("crawl interrupted: %w", ctx.Err())
		}
	}
	<-done
	return byURL, nil
}

// persist writes each accepted record through the blob store and page store,
// then publishes a completion event. Failures are logged per record and
// joined into the returned error; they never undo other records.
func (r *Runner) persist(
	ctx context.Context,
	runID string,
	report pipeline.Report,
	resultsByURL map[string]pipeline.CrawlResult,
) error {
	var errs []error
	for _, record := range report.Accepted {
		res := resultsByURL[record.SourceURL]
		if err := r.persistRecord(ctx, runID, record, res); err != nil {
			r.logger.Error("persist record failed",
				zap.String("run_id", runID),
				zap.String("natural_key", record.NaturalKey),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("persist %s: %w", record.NaturalKey, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) persistRecord(
	ctx context.Context,
	runID string,
	record pipeline.Record,
	res pipeline.CrawlResult,
) error {
	blobURI, err := r.storeBlob(ctx, runID, res.Page)
	if err != nil {
		return err
	}

	row := pipeline.PageRow{
		NaturalKey: record.NaturalKey,
		URL:        record.SourceURL,
		Title:      record.StringField("title"),
		Summary:    record.StringField("summary"),
		Content:    res.Page.Excerpt,
		BlobURI:    blobURI,
		CrawledAt:  r.now(),
	}
	if err := r.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	metrics.ObserveUpsert()
	r.emit(runID, progress.Event{Stage: progress.StageUpsert, URL: record.SourceURL})

	return r.publishRecord(ctx, runID, record, row)
}

func (r *Runner) storeBlob(ctx context.Context, runID string, page pipeline.PageText) (string, error) {
	if r.blob == nil || page.Text == "" {
		return "", nil
	}
	hash, err := r.hasher.Hash([]byte(page.Text))
	if err != nil {
		return "", fmt.Errorf("hash page text: %w", err)
	}
	uri, err := r.blob.PutObject(ctx, r.buildBlobPath(runID, hash), r.cfg.ContentType, []byte(page.Text))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (r *Runner) publishRecord(
	ctx context.Context,
	runID string,
	record pipeline.Record,
	row pipeline.PageRow,
) error {
	if r.cfg.Topic == "" || r.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"run_id":      runID,
		"natural_key": record.NaturalKey,
		"url":         record.SourceURL,
		"fields":      record.Fields,
		"blob_uri":    row.BlobURI,
		"timestamp":   r.now().Format(time.RFC3339),
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

func (r *Runner) buildBlobPath(runID, hash string) string {
	prefix := strings.Trim(r.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.txt", runID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.txt", prefix, runID, hash)
}

func (r *Runner) emit(runID string, evt progress.Event) {
	if r.emitter == nil {
		return
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(id)
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}

func uniqueCount(urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	return len(seen)
}
