// Package repl implements the interactive query shell over the pages store.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pagestash/pagestash/internal/pipeline"
)

// REPL reads query commands from an input stream and prints results.
type REPL struct {
	reader pipeline.PageReader
	in     io.Reader
	out    io.Writer
}

// New constructs a REPL over the given page reader.
func New(reader pipeline.PageReader, in io.Reader, out io.Writer) *REPL {
	return &REPL{reader: reader, in: in, out: out}
}

// Run starts the read-eval-print loop. It returns when the input stream ends,
// the user quits, or the context is canceled.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "pagestash query shell")
	fmt.Fprintln(r.out, "Type 'help' for available commands or 'quit' to exit.")

	if err := r.reader.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	fmt.Fprintln(r.out, "database connection verified")

	scanner := bufio.NewScanner(r.in)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(r.out, "\nquery> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !r.dispatch(ctx, line) {
			return nil
		}
	}
}

// dispatch runs one command line and reports whether the loop should continue.
func (r *REPL) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "quit", "exit":
		fmt.Fprintln(r.out, "bye")
		return false
	case "help":
		r.printHelp()
	case "test":
		r.handleTest(ctx)
	case "latest":
		r.handleLatest(ctx, parts)
	case "find":
		r.handleFind(ctx, parts)
	case "search":
		r.handleSearch(ctx, parts)
	case "count":
		r.handleCount(ctx)
	case "summaries":
		r.handleSummaries(ctx)
	case "content":
		r.handleContent(ctx, parts)
	default:
		fmt.Fprintf(r.out, "unknown command %q, type 'help' for available commands\n", cmd)
	}
	return true
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Available commands:

  latest              show latest 5 pages
  latest N            show latest N pages (capped at 50)
  find <url>          find page by URL
  search title <q>    search pages by title (case-insensitive)
  search summary <q>  search pages by summary content
  count               show total number of pages
  summaries           show pages with extracted summaries
  content <id>        view stored content of a page by ID
  test                test database connection
  help                show this message
  quit/exit           leave the shell
`)
}
