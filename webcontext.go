package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxSubjectContextLen caps extracted page text so the council prompts
	// stay within sane bounds.
	MaxSubjectContextLen = 8000

	// WebFetchUserAgent identifies subject-context fetches
	WebFetchUserAgent = "LLM-Council-Context-Fetcher/1.0"
)

// FetchURLContent fetches a web page and extracts its readable text for
// use as subject context in a council run. Markup, scripts, and styles are
// stripped; the result is the page title followed by paragraph text.
func FetchURLContent(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported URL scheme: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", WebFetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := &http.Client{Timeout: FetchURLTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	return ExtractReadableText(doc), nil
}

// ExtractReadableText pulls title, meta description, headings, paragraphs,
// and list items out of a parsed document, in document order.
func ExtractReadableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header, iframe").Remove()

	var parts []string

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			parts = append(parts, desc)
		}
	}

	doc.Find("h1, h2, h3, p, li, blockquote").Each(func(i int, s *goquery.Selection) {
		text := normalizeWhitespace(s.Text())
		if len(text) < 3 {
			return
		}
		parts = append(parts, text)
	})

	return truncateRunes(strings.Join(parts, "\n\n"), MaxSubjectContextLen)
}

// normalizeWhitespace collapses runs of whitespace (including &nbsp;) into
// single spaces.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
