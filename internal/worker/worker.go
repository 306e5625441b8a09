// Package worker implements the crawl execution loop: dequeue a task, fetch
// the page, shape its text, and run extraction, emitting one raw outcome per
// URL for downstream reconciliation.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/content"
	"github.com/pagestash/pagestash/internal/metrics"
	"github.com/pagestash/pagestash/internal/pipeline"
	"github.com/pagestash/pagestash/internal/progress"
	queuememory "github.com/pagestash/pagestash/internal/queue/memory"
)

// RateWaiter gates fetches per host.
type RateWaiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls Worker behavior.
type Config struct {
	RespectRobots bool
	Headers       http.Header
}

// Worker consumes crawl tasks and produces raw fetch outcomes.
type Worker struct {
	queue     pipeline.Queue
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	limiter   RateWaiter
	retry     *ExponentialRetryPolicy
	schema    pipeline.Schema
	results   chan<- pipeline.CrawlResult
	emitter   progress.Emitter
	clock     pipeline.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. The extractor may be nil, in which case payloads
// are derived from the shaped page text instead of a model call.
func New(
	queue pipeline.Queue,
	fetcher pipeline.Fetcher,
	extractor pipeline.Extractor,
	limiter RateWaiter,
	retry *ExponentialRetryPolicy,
	schema pipeline.Schema,
	results chan<- pipeline.CrawlResult,
	emitter progress.Emitter,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if retry == nil {
		retry = NewExponentialRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		retry:     retry,
		schema:    schema,
		results:   results,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queuememory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		metrics.IncActiveWorkers()
		result := w.processTask(ctx, task)
		metrics.DecActiveWorkers()

		select {
		case w.results <- result:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) processTask(ctx context.Context, task pipeline.Task) pipeline.CrawlResult {
	w.emitFetchStart(task)

	resp, err := w.fetchWithRetry(ctx, task)
	if err != nil {
		metrics.ObserveFetch(task.URL, "error", 0, 0)
		w.emitFetchDone(task, 0, 0, 0)
		w.logger.Warn("fetch failed", zap.String("run_id", task.RunID), zap.String("url", task.URL), zap.Error(err))
		return pipeline.CrawlResult{
			Outcome: pipeline.FetchOutcome{URL: task.URL, Err: err.Error()},
		}
	}

	metrics.ObserveFetch(task.URL, "ok", len(resp.Body), resp.Duration)
	w.emitFetchDone(task, resp.StatusCode, int64(len(resp.Body)), resp.Duration)

	page, err := content.Shape(task.URL, resp.Body)
	if err != nil {
		w.logger.Warn("shape page failed", zap.String("url", task.URL), zap.Error(err))
		return pipeline.CrawlResult{
			Outcome:    pipeline.FetchOutcome{URL: task.URL, Err: "unreadable page content: " + err.Error()},
			StatusCode: resp.StatusCode,
			Duration:   resp.Duration,
		}
	}

	payload := w.extractPayload(ctx, page)
	return pipeline.CrawlResult{
		Outcome:    pipeline.FetchOutcome{URL: task.URL, OK: true, Payload: payload},
		Page:       page,
		StatusCode: resp.StatusCode,
		Duration:   resp.Duration,
	}
}

func (w *Worker) fetchWithRetry(ctx context.Context, task pipeline.Task) (pipeline.FetchResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx, task.URL); err != nil {
				return pipeline.FetchResponse{}, err
			}
		}
		resp, err := w.fetcher.Fetch(ctx, pipeline.FetchRequest{
			RunID:         task.RunID,
			URL:           task.URL,
			Headers:       w.cfg.Headers,
			RespectRobots: w.cfg.RespectRobots,
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !w.retry.ShouldRetry(err, attempt+1) {
			return pipeline.FetchResponse{}, lastErr
		}
		select {
		case <-ctx.Done():
			return pipeline.FetchResponse{}, ctx.Err()
		case <-time.After(w.retry.Backoff(attempt)):
		}
	}
}

// extractPayload asks the extractor for structured data; when no extractor is
// configured or the call fails, it falls back to the title and excerpt pulled
// from the page markup.
func (w *Worker) extractPayload(ctx context.Context, page pipeline.PageText) pipeline.Payload {
	if w.extractor == nil {
		return w.fallbackPayload(page)
	}
	raw, err := w.extractor.Extract(ctx, page, w.schema)
	if err != nil {
		w.logger.Warn("extraction failed, using page text fallback",
			zap.String("url", page.URL), zap.Error(err))
		return w.fallbackPayload(page)
	}
	return pipeline.ClassifyJSON(raw)
}

func (w *Worker) fallbackPayload(page pipeline.PageText) pipeline.Payload {
	fields := map[string]any{}
	for _, f := range w.schema.Fields {
		if f.Type != pipeline.FieldString {
			continue
		}
		switch f.Name {
		case "title":
			fields["title"] = page.Title
		case "summary":
			fields["summary"] = page.Excerpt
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return pipeline.MalformedPayload("unencodable fallback payload")
	}
	return pipeline.ClassifyJSON(raw)
}

func (w *Worker) emitFetchStart(task pipeline.Task) {
	if w.emitter == nil {
		return
	}
	runID, err := uuid.Parse(task.RunID)
	if err != nil {
		return
	}
	w.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    w.now(),
		Stage: progress.StageFetchStart,
		Site:  metrics.SanitizeSite(task.URL),
		URL:   task.URL,
	})
}

func (w *Worker) emitFetchDone(task pipeline.Task, status int, bytes int64, dur time.Duration) {
	if w.emitter == nil {
		return
	}
	runID, err := uuid.Parse(task.RunID)
	if err != nil {
		return
	}
	w.emitter.Emit(progress.Event{
		RunID:       progress.UUIDToBytes(runID),
		TS:          w.now(),
		Stage:       progress.StageFetchDone,
		Site:        metrics.SanitizeSite(task.URL),
		URL:         task.URL,
		Bytes:       bytes,
		StatusClass: progress.ClassifyStatus(status),
		Dur:         dur,
	})
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}
