package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagestash/pagestash/internal/pipeline"
)

func newMockStore(t *testing.T) (*PageStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPageStoreWithPool(mock, "pages")
	require.NoError(t, err)
	return store, mock
}

func pageRows(rows ...pipeline.PageRow) *pgxmock.Rows {
	out := pgxmock.NewRows([]string{
		"id", "natural_key", "url", "title", "summary", "content", "blob_uri", "crawled_at",
	})
	for _, r := range rows {
		out.AddRow(r.ID, r.NaturalKey, r.URL, r.Title, r.Summary, r.Content, r.BlobURI, r.CrawledAt)
	}
	return out
}

func samplePage() pipeline.PageRow {
	return pipeline.PageRow{
		ID:         1,
		NaturalKey: "https://example.com",
		URL:        "https://example.com",
		Title:      "Example",
		Summary:    "An example page.",
		Content:    "Example paragraph.",
		BlobURI:    "file:///tmp/blob",
		CrawledAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestUpsertInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectExec("INSERT INTO pages").
		WithArgs(
			row.NaturalKey,
			row.URL,
			row.Title,
			row.Summary,
			row.Content,
			row.BlobURI,
			row.CrawledAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRequiresNaturalKey(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.Upsert(context.Background(), pipeline.PageRow{URL: "https://example.com"})
	require.ErrorContains(t, err, "natural key")
}

func TestLatestReturnsRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectQuery("SELECT (.+) FROM pages ORDER BY id DESC").
		WithArgs(5).
		WillReturnRows(pageRows(row))

	got, err := store.Latest(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []pipeline.PageRow{row}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestDefaultsLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM pages ORDER BY id DESC").
		WithArgs(10).
		WillReturnRows(pageRows())

	got, err := store.Latest(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByURLNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE url").
		WithArgs("https://missing.example").
		WillReturnRows(pageRows())

	_, err := store.FindByURL(context.Background(), "https://missing.example")
	require.ErrorIs(t, err, pipeline.ErrPageNotFound)
}

func TestFindByURLReturnsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE url").
		WithArgs(row.URL).
		WillReturnRows(pageRows(row))

	got, err := store.FindByURL(context.Background(), row.URL)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestSearchTitleUsesILike(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE title ILIKE").
		WithArgs("example", 5).
		WillReturnRows(pageRows(row))

	got, err := store.SearchTitle(context.Background(), "example", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSearchSummaryUsesILike(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE summary ILIKE").
		WithArgs("example", 10).
		WillReturnRows(pageRows())

	got, err := store.SearchSummary(context.Background(), "example", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pages`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
}

func TestWithSummariesFiltersEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE title <> '' AND summary <> ''").
		WithArgs(3).
		WillReturnRows(pageRows(row))

	got, err := store.WithSummaries(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestGetByID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := samplePage()

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(pageRows(row))

	got, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM pages WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(pageRows())

	_, err := store.GetByID(context.Background(), 9)
	require.ErrorIs(t, err, pipeline.ErrPageNotFound)
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
}

func TestNewPageStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPageStoreWithPool(nil, "pages")
	require.ErrorContains(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPageStoreWithPool(mock, "pages; DROP TABLE pages")
	require.ErrorContains(t, err, "invalid table name")

	store, err := NewPageStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "pages", store.table)
}
