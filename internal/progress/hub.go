package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the Hub. Zero values pick defaults sized for a single-process
// batch crawl, where one run emits a few events per URL rather than a
// firehose.
type Config struct {
	// BufferSize is the pending event capacity (default 256).
	BufferSize int
	// BatchSize flushes once this many events collect (default 64).
	BatchSize int
	// FlushInterval flushes a partial batch after this long (default 250ms).
	FlushInterval time.Duration
	// SinkTimeout bounds each sink call during a flush (default 5s).
	SinkTimeout time.Duration
	// BaseContext is the parent context for sink calls (default Background).
	BaseContext context.Context
	// Logger receives drop and sink-failure warnings.
	Logger *zap.Logger
}

const (
	defaultBufferSize    = 256
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
	defaultSinkTimeout   = 5 * time.Second
)

// Hub collects crawl run events and delivers them to sinks in batches. Emit
// never blocks the crawl path; the background goroutine owns all sink calls.
type Hub struct {
	cfg     Config
	sinks   []Sink
	pending chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the delivery goroutine over the given sinks. The returned Hub
// accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		pending: make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  cfg.Logger,
	}
	go h.deliver()
	return h
}

// Emit queues an event for delivery. Invalid events are discarded. When the
// buffer is full the event is dropped and counted rather than stalling a
// worker; a batch run should never fill the buffer in practice.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid run event", zap.Error(err))
		return
	}
	select {
	case h.pending <- evt:
	default:
		h.logger.Warn("run event dropped, hub buffer full",
			zap.Int64("dropped_total", h.dropped.Add(1)))
	}
}

// Close drains pending events, flushes and closes the sinks, and waits for
// the delivery goroutine to exit. Repeat calls after shutdown begins are
// no-ops.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// deliver owns the batch buffer. The flush timer is armed only while a
// partial batch is pending, so an idle hub has no ticking timer.
func (h *Hub) deliver() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.BatchSize)
	var flushC <-chan time.Time
	for {
		select {
		case evt := <-h.pending:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
				flushC = nil
			} else if flushC == nil {
				flushC = time.After(h.cfg.FlushInterval)
			}
		case <-flushC:
			flushC = nil
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drain(batch)
			return
		}
	}
}

// drain empties the pending channel after stop, flushes what remains, and
// closes the sinks.
func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.pending:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("run event sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("run event sink close failed", zap.Error(err))
		}
	}
}
