// Package memory provides an in-memory page store for development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/pagestash/pagestash/internal/pipeline"
)

// PageStore keeps page rows in a map keyed on natural key. It mirrors the
// Postgres store's upsert semantics: the same key written twice holds the
// latest values under one row id.
type PageStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string]pipeline.PageRow
}

// NewPageStore constructs an empty PageStore.
func NewPageStore() *PageStore {
	return &PageStore{rows: make(map[string]pipeline.PageRow)}
}

// Close is a no-op for the in-memory store.
func (s *PageStore) Close() {}

// Ping always succeeds.
func (s *PageStore) Ping(_ context.Context) error { return nil }

// Upsert stores the row, replacing any prior row with the same natural key.
func (s *PageStore) Upsert(_ context.Context, row pipeline.PageRow) error {
	if row.NaturalKey == "" {
		return errNaturalKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.rows[row.NaturalKey]; ok {
		row.ID = prior.ID
	} else {
		s.nextID++
		row.ID = s.nextID
	}
	s.rows[row.NaturalKey] = row
	return nil
}

// Latest returns up to limit rows, most recently inserted first.
func (s *PageStore) Latest(_ context.Context, limit int) ([]pipeline.PageRow, error) {
	return s.filter(limit, func(pipeline.PageRow) bool { return true }), nil
}

// FindByURL returns the stored page for an exact URL match.
func (s *PageStore) FindByURL(_ context.Context, url string) (pipeline.PageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found pipeline.PageRow
	ok := false
	for _, row := range s.rows {
		if row.URL == url && (!ok || row.ID > found.ID) {
			found = row
			ok = true
		}
	}
	if !ok {
		return pipeline.PageRow{}, pipeline.ErrPageNotFound
	}
	return found, nil
}

// SearchTitle returns rows whose title contains the query, case-insensitively.
func (s *PageStore) SearchTitle(_ context.Context, query string, limit int) ([]pipeline.PageRow, error) {
	q := strings.ToLower(query)
	return s.filter(limit, func(row pipeline.PageRow) bool {
		return strings.Contains(strings.ToLower(row.Title), q)
	}), nil
}

// SearchSummary returns rows whose summary contains the query, case-insensitively.
func (s *PageStore) SearchSummary(_ context.Context, query string, limit int) ([]pipeline.PageRow, error) {
	q := strings.ToLower(query)
	return s.filter(limit, func(row pipeline.PageRow) bool {
		return strings.Contains(strings.ToLower(row.Summary), q)
	}), nil
}

// Count returns the number of stored rows.
func (s *PageStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// WithSummaries returns rows that have both a title and a summary.
func (s *PageStore) WithSummaries(_ context.Context, limit int) ([]pipeline.PageRow, error) {
	return s.filter(limit, func(row pipeline.PageRow) bool {
		return row.Title != "" && row.Summary != ""
	}), nil
}

// GetByID returns one row by its id.
func (s *PageStore) GetByID(_ context.Context, id int64) (pipeline.PageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return pipeline.PageRow{}, pipeline.ErrPageNotFound
}

func (s *PageStore) filter(limit int, keep func(pipeline.PageRow) bool) []pipeline.PageRow {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.PageRow, 0, len(s.rows))
	for _, row := range s.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

var errNaturalKeyRequired = errors.New("natural key is required")
