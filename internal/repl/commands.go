package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pagestash/pagestash/internal/pipeline"
)

const (
	defaultLatestLimit = 5
	defaultSearchLimit = 10
	maxLimit           = 50
)

func (r *REPL) handleTest(ctx context.Context) {
	if err := r.reader.Ping(ctx); err != nil {
		fmt.Fprintf(r.out, "database connection failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "database connection verified")
}

func (r *REPL) handleLatest(ctx context.Context, parts []string) {
	limit := defaultLatestLimit
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			fmt.Fprintln(r.out, "invalid number, usage: latest [number]")
			return
		}
		if n <= 0 {
			fmt.Fprintln(r.out, "limit must be a positive number")
			return
		}
		limit = n
		if limit > maxLimit {
			fmt.Fprintf(r.out, "limiting to %d results\n", maxLimit)
			limit = maxLimit
		}
	}

	pages, err := r.reader.Latest(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, FormatPages(pages, false))
}

func (r *REPL) handleFind(ctx context.Context, parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(r.out, "usage: find <url>")
		return
	}
	url := strings.Join(parts[1:], " ")

	page, err := r.reader.FindByURL(ctx, url)
	if errors.Is(err, pipeline.ErrPageNotFound) {
		fmt.Fprintln(r.out, "page not found")
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, FormatPage(page, true))
}

func (r *REPL) handleSearch(ctx context.Context, parts []string) {
	if len(parts) < 3 {
		fmt.Fprintln(r.out, "usage: search [title|summary] <query>")
		return
	}
	field := strings.ToLower(parts[1])
	query := strings.Join(parts[2:], " ")

	var (
		pages []pipeline.PageRow
		err   error
	)
	switch field {
	case "title":
		pages, err = r.reader.SearchTitle(ctx, query, defaultSearchLimit)
	case "summary":
		pages, err = r.reader.SearchSummary(ctx, query, defaultSearchLimit)
	default:
		fmt.Fprintln(r.out, "search field must be 'title' or 'summary'")
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, FormatPages(pages, false))
}

func (r *REPL) handleCount(ctx context.Context) {
	total, err := r.reader.Count(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "total pages: %d\n", total)
}

func (r *REPL) handleSummaries(ctx context.Context) {
	pages, err := r.reader.WithSummaries(ctx, defaultSearchLimit)
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, FormatPages(pages, false))
}

func (r *REPL) handleContent(ctx context.Context, parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(r.out, "usage: content <page_id>")
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		fmt.Fprintln(r.out, "invalid page ID, must be a number")
		return
	}

	page, err := r.reader.GetByID(ctx, id)
	if errors.Is(err, pipeline.ErrPageNotFound) {
		fmt.Fprintf(r.out, "page with ID %d not found\n", id)
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "query failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, FormatPage(page, true))
}
