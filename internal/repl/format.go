package repl

import (
	"fmt"
	"strings"

	"github.com/pagestash/pagestash/internal/pipeline"
)

const contentPreviewLimit = 200

// FormatPage renders one page row for terminal display.
func FormatPage(page pipeline.PageRow, includeContent bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:      %d\n", page.ID)
	fmt.Fprintf(&b, "URL:     %s\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Title:   %s\n", page.Title)
	}
	if page.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", page.Summary)
	}
	if includeContent && page.Content != "" {
		content := page.Content
		if len(content) > contentPreviewLimit {
			content = content[:contentPreviewLimit] + "..."
		}
		fmt.Fprintf(&b, "Content: %s\n", content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatPages renders a numbered list of page rows.
func FormatPages(pages []pipeline.PageRow, includeContent bool) string {
	if len(pages) == 0 {
		return "No pages found."
	}
	var parts []string
	for i, page := range pages {
		parts = append(parts, fmt.Sprintf("--- Page %d ---", i+1))
		parts = append(parts, FormatPage(page, includeContent))
		parts = append(parts, "")
	}
	return strings.TrimSuffix(strings.Join(parts, "\n"), "\n")
}
