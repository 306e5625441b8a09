// Package postgres provides the Postgres-backed page store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagestash/pagestash/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PageStoreConfig controls the Postgres connection pool backing the pages table.
type PageStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PageStore reads and writes page rows in Postgres.
type PageStore struct {
	pool  dbPool
	table string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg PageStoreConfig) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PageStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool dbPool, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database connection.
func (s *PageStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	return s.pool.Ping(ctx)
}

// Upsert writes one page row keyed on natural_key. Writing the same key again
// replaces the stored row in place.
func (s *PageStore) Upsert(ctx context.Context, row pipeline.PageRow) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if row.NaturalKey == "" {
		return fmt.Errorf("natural key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	natural_key,
	url,
	title,
	summary,
	content,
	blob_uri,
	crawled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (natural_key) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	blob_uri = EXCLUDED.blob_uri,
	crawled_at = EXCLUDED.crawled_at`, s.table)

	args := []any{
		row.NaturalKey,
		row.URL,
		row.Title,
		row.Summary,
		row.Content,
		row.BlobURI,
		row.CrawledAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

const pageColumns = "id, natural_key, url, title, summary, content, blob_uri, crawled_at"

// Latest returns up to limit pages, most recently inserted first.
func (s *PageStore) Latest(ctx context.Context, limit int) ([]pipeline.PageRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT $1", pageColumns, s.table)
	return s.queryRows(ctx, query, normalizeLimit(limit))
}

// FindByURL returns the stored page for an exact URL match.
func (s *PageStore) FindByURL(ctx context.Context, url string) (pipeline.PageRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE url = $1 ORDER BY id DESC LIMIT 1", pageColumns, s.table)
	return s.queryOne(ctx, query, url)
}

// SearchTitle returns pages whose title contains the query, case-insensitively.
func (s *PageStore) SearchTitle(ctx context.Context, q string, limit int) ([]pipeline.PageRow, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE title ILIKE '%%' || $1 || '%%' ORDER BY id DESC LIMIT $2",
		pageColumns, s.table)
	return s.queryRows(ctx, query, q, normalizeLimit(limit))
}

// SearchSummary returns pages whose summary contains the query, case-insensitively.
func (s *PageStore) SearchSummary(ctx context.Context, q string, limit int) ([]pipeline.PageRow, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE summary ILIKE '%%' || $1 || '%%' ORDER BY id DESC LIMIT $2",
		pageColumns, s.table)
	return s.queryRows(ctx, query, q, normalizeLimit(limit))
}

// Count returns the total number of stored pages.
func (s *PageStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("page store is not configured")
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// WithSummaries returns pages that have both a title and a summary.
func (s *PageStore) WithSummaries(ctx context.Context, limit int) ([]pipeline.PageRow, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE title <> '' AND summary <> '' ORDER BY id DESC LIMIT $1",
		pageColumns, s.table)
	return s.queryRows(ctx, query, normalizeLimit(limit))
}

// GetByID returns one page by its row id.
func (s *PageStore) GetByID(ctx context.Context, id int64) (pipeline.PageRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", pageColumns, s.table)
	return s.queryOne(ctx, query, id)
}

func (s *PageStore) queryRows(ctx context.Context, query string, args ...any) ([]pipeline.PageRow, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("page store is not configured")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var out []pipeline.PageRow
	for rows.Next() {
		row, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return out, nil
}

func (s *PageStore) queryOne(ctx context.Context, query string, args ...any) (pipeline.PageRow, error) {
	if s == nil || s.pool == nil {
		return pipeline.PageRow{}, fmt.Errorf("page store is not configured")
	}
	row, err := scanPage(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.PageRow{}, pipeline.ErrPageNotFound
	}
	if err != nil {
		return pipeline.PageRow{}, err
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(sc rowScanner) (pipeline.PageRow, error) {
	var row pipeline.PageRow
	err := sc.Scan(
		&row.ID,
		&row.NaturalKey,
		&row.URL,
		&row.Title,
		&row.Summary,
		&row.Content,
		&row.BlobURI,
		&row.CrawledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.PageRow{}, err
		}
		return pipeline.PageRow{}, fmt.Errorf("scan page: %w", err)
	}
	return row, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
