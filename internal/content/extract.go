// Package content turns fetched HTML into the readable shape the extraction
// and storage steps consume.
package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagestash/pagestash/internal/pipeline"
)

const (
	// excerptMin is the smallest paragraph considered meaningful.
	excerptMin = 50
	// excerptMax caps the stored content column.
	excerptMax = 500
)

// Shape parses HTML into a title guess, readable block text, and a bounded
// excerpt for the content column.
func Shape(pageURL string, html []byte) (pipeline.PageText, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return pipeline.PageText{}, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, iframe").Remove()

	title := squash(doc.Find("title").First().Text())
	if title == "" {
		title = squash(doc.Find("h1").First().Text())
	}

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, sel *goquery.Selection) {
		if text := squash(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	text := strings.Join(blocks, "\n\n")
	if text == "" {
		text = squash(doc.Find("body").Text())
	}

	return pipeline.PageText{
		URL:     pageURL,
		Title:   title,
		Text:    text,
		Excerpt: FirstParagraph(text),
	}, nil
}

// FirstParagraph returns the first meaningful paragraph of the text, capped
// for storage. Short lead-ins (nav crumbs, bare headings) are skipped in
// favor of the first block with real content.
func FirstParagraph(text string) string {
	if text == "" {
		return ""
	}
	for _, paragraph := range strings.Split(text, "\n\n") {
		clean := squash(strings.TrimLeft(paragraph, "#"))
		if len([]rune(clean)) > excerptMin {
			return truncate(clean, excerptMax)
		}
	}
	return truncate(squash(text), excerptMax)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
