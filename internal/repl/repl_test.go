package repl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagestash/pagestash/internal/pipeline"
)

type fakeReader struct {
	rows    []pipeline.PageRow
	pingErr error
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

func (f *fakeReader) Latest(_ context.Context, limit int) ([]pipeline.PageRow, error) {
	if limit > len(f.rows) {
		limit = len(f.rows)
	}
	return f.rows[:limit], nil
}

func (f *fakeReader) FindByURL(_ context.Context, url string) (pipeline.PageRow, error) {
	for _, row := range f.rows {
		if row.URL == url {
			return row, nil
		}
	}
	return pipeline.PageRow{}, pipeline.ErrPageNotFound
}

func (f *fakeReader) SearchTitle(_ context.Context, query string, _ int) ([]pipeline.PageRow, error) {
	var out []pipeline.PageRow
	for _, row := range f.rows {
		if strings.Contains(strings.ToLower(row.Title), strings.ToLower(query)) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeReader) SearchSummary(_ context.Context, query string, _ int) ([]pipeline.PageRow, error) {
	var out []pipeline.PageRow
	for _, row := range f.rows {
		if strings.Contains(strings.ToLower(row.Summary), strings.ToLower(query)) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeReader) Count(context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeReader) WithSummaries(_ context.Context, _ int) ([]pipeline.PageRow, error) {
	var out []pipeline.PageRow
	for _, row := range f.rows {
		if row.Title != "" && row.Summary != "" {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeReader) GetByID(_ context.Context, id int64) (pipeline.PageRow, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return pipeline.PageRow{}, pipeline.ErrPageNotFound
}

func sampleRows() []pipeline.PageRow {
	return []pipeline.PageRow{
		{
			ID:        3,
			URL:       "https://go.example/concurrency",
			Title:     "Go Concurrency Patterns",
			Summary:   "Channels and goroutines explained.",
			Content:   "A long discussion of channels.",
			CrawledAt: time.Unix(1700000300, 0).UTC(),
		},
		{
			ID:        2,
			URL:       "https://go.example/errors",
			Title:     "Error Handling",
			Summary:   "Wrapping and sentinel errors.",
			CrawledAt: time.Unix(1700000200, 0).UTC(),
		},
		{
			ID:        1,
			URL:       "https://go.example/intro",
			Title:     "",
			Summary:   "",
			CrawledAt: time.Unix(1700000100, 0).UTC(),
		},
	}
}

func runCommands(t *testing.T, reader pipeline.PageReader, commands ...string) string {
	t.Helper()
	in := strings.NewReader(strings.Join(commands, "\n") + "\n")
	var out bytes.Buffer
	r := New(reader, in, &out)
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestREPLQuitExits(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{}, "quit")
	require.Contains(t, out, "bye")
}

func TestREPLLatestDefaultsToFive(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()}, "latest", "exit")
	require.Contains(t, out, "--- Page 1 ---")
	require.Contains(t, out, "Go Concurrency Patterns")
}

func TestREPLLatestCapsAtFifty(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()}, "latest 500", "exit")
	require.Contains(t, out, "limiting to 50 results")
}

func TestREPLLatestRejectsBadNumbers(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()}, "latest abc", "latest -2", "exit")
	require.Contains(t, out, "invalid number")
	require.Contains(t, out, "must be a positive number")
}

func TestREPLFind(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()},
		"find https://go.example/concurrency",
		"find https://missing.example",
		"exit")
	require.Contains(t, out, "Go Concurrency Patterns")
	require.Contains(t, out, "Content: A long discussion of channels.")
	require.Contains(t, out, "page not found")
}

func TestREPLSearch(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()},
		"search title concurrency",
		"search summary sentinel",
		"search body nope",
		"search",
		"exit")
	require.Contains(t, out, "Go Concurrency Patterns")
	require.Contains(t, out, "Error Handling")
	require.Contains(t, out, "search field must be 'title' or 'summary'")
	require.Contains(t, out, "usage: search [title|summary] <query>")
}

func TestREPLCountAndSummaries(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()}, "count", "summaries", "exit")
	require.Contains(t, out, "total pages: 3")
	// The row without title or summary is filtered out.
	require.NotContains(t, out, "https://go.example/intro")
}

func TestREPLContent(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{rows: sampleRows()},
		"content 3",
		"content 99",
		"content abc",
		"exit")
	require.Contains(t, out, "Content: A long discussion of channels.")
	require.Contains(t, out, "page with ID 99 not found")
	require.Contains(t, out, "invalid page ID")
}

func TestREPLUnknownCommand(t *testing.T) {
	t.Parallel()

	out := runCommands(t, &fakeReader{}, "bogus", "exit")
	require.Contains(t, out, `unknown command "bogus"`)
}

func TestREPLPingFailureAborts(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("latest\n")
	var out bytes.Buffer
	r := New(&fakeReader{pingErr: errors.New("refused")}, in, &out)
	require.Error(t, r.Run(context.Background()))
}

func TestFormatPageTruncatesContent(t *testing.T) {
	t.Parallel()

	page := pipeline.PageRow{ID: 1, URL: "https://x.example", Content: strings.Repeat("a", 400)}
	got := FormatPage(page, true)
	require.Contains(t, got, strings.Repeat("a", 200)+"...")
	require.NotContains(t, got, strings.Repeat("a", 201))
}
