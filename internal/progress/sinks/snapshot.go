package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/pagestash/pagestash/internal/progress"
)

// RunSnapshot is the aggregated view of one crawl run.
type RunSnapshot struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	DoneAt    time.Time `json:"done_at,omitzero"`
	State     string    `json:"state"`
	Fetched   int64     `json:"fetched"`
	Bytes     int64     `json:"bytes"`
	Accepted  int64     `json:"accepted"`
	Rejected  int64     `json:"rejected"`
	Upserts   int64     `json:"upserts"`
	Error     string    `json:"error,omitempty"`
}

// SnapshotSink aggregates events into per-run snapshots that the HTTP API can
// serve without a durable store.
type SnapshotSink struct {
	mu      sync.RWMutex
	runs    map[string]*RunSnapshot
	order   []string
	maxRuns int
}

// NewSnapshotSink constructs a SnapshotSink retaining at most maxRuns runs.
func NewSnapshotSink(maxRuns int) *SnapshotSink {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &SnapshotSink{
		runs:    make(map[string]*RunSnapshot),
		maxRuns: maxRuns,
	}
}

// Consume folds the batch into the snapshot map.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		snap := s.snapshotLocked(evt.RunUUID().String())
		switch evt.Stage {
		case progress.StageRunStart:
			snap.StartedAt = evt.TS
			snap.State = "running"
		case progress.StageRunDone:
			snap.DoneAt = evt.TS
			snap.State = "done"
		case progress.StageRunError:
			snap.DoneAt = evt.TS
			snap.State = "error"
			snap.Error = evt.Note
		case progress.StageFetchDone:
			snap.Fetched++
			snap.Bytes += evt.Bytes
		case progress.StageReconciled:
			snap.Accepted += evt.Accepted
			snap.Rejected += evt.Rejected
		case progress.StageUpsert:
			snap.Upserts++
		}
	}
	return nil
}

// Runs returns copies of the retained snapshots, newest first.
func (s *SnapshotSink) Runs() []RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunSnapshot, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if snap, ok := s.runs[s.order[i]]; ok {
			out = append(out, *snap)
		}
	}
	return out
}

// Run returns the snapshot for one run id.
func (s *SnapshotSink) Run(id string) (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.runs[id]
	if !ok {
		return RunSnapshot{}, false
	}
	return *snap, true
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}

func (s *SnapshotSink) snapshotLocked(id string) *RunSnapshot {
	if snap, ok := s.runs[id]; ok {
		return snap
	}
	if len(s.order) >= s.maxRuns {
		evict := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, evict)
	}
	snap := &RunSnapshot{RunID: id, State: "running"}
	s.runs[id] = snap
	s.order = append(s.order, id)
	return snap
}
