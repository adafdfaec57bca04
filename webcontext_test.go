package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Go Memory Model</title>
  <meta name="description" content="How Go guarantees memory ordering.">
  <script>trackEverything();</script>
  <style>body { margin: 0 }</style>
</head>
<body>
  <nav>Home | Docs | Blog</nav>
  <h1>The Go Memory Model</h1>
  <p>The memory model specifies the conditions under which reads observe writes.</p>
  <ul><li>Happens-before ordering</li></ul>
  <footer>Copyright notice</footer>
</body>
</html>`

func TestExtractReadableText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractReadableText(doc)

	for _, want := range []string{
		"Go Memory Model",
		"How Go guarantees memory ordering.",
		"The memory model specifies the conditions under which reads observe writes.",
		"Happens-before ordering",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("extracted text missing %q:\n%s", want, got)
		}
	}
	for _, reject := range []string{"trackEverything", "margin: 0", "Home | Docs", "Copyright notice"} {
		if strings.Contains(got, reject) {
			t.Errorf("extracted text contains stripped content %q", reject)
		}
	}
}

func TestExtractReadableTextCapsLength(t *testing.T) {
	html := "<html><body><p>" + strings.Repeat("word ", 5000) + "</p></body></html>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractReadableText(doc)
	if utf8.RuneCountInString(got) > MaxSubjectContextLen {
		t.Errorf("extracted text length %d exceeds cap %d", utf8.RuneCountInString(got), MaxSubjectContextLen)
	}
}

func TestExtractReadableTextCapPreservesRunes(t *testing.T) {
	html := "<html><body><p>" + strings.Repeat("日本語テキスト ", 2000) + "</p></body></html>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractReadableText(doc)
	if !utf8.ValidString(got) {
		t.Error("cap split a multi-byte rune")
	}
	if utf8.RuneCountInString(got) > MaxSubjectContextLen {
		t.Errorf("extracted text %d runes exceeds cap %d", utf8.RuneCountInString(got), MaxSubjectContextLen)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a\u00a0b \n\t c  ")
	if got != "a b c" {
		t.Errorf("normalizeWhitespace = %q", got)
	}
}

func TestFetchURLContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != WebFetchUserAgent {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	got, err := FetchURLContent(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchURLContent: %v", err)
	}
	if !strings.Contains(got, "The Go Memory Model") {
		t.Errorf("content = %q", got)
	}
}

func TestFetchURLContentRejectsScheme(t *testing.T) {
	if _, err := FetchURLContent(context.Background(), "ftp://example.com"); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if _, err := FetchURLContent(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("expected error for file scheme")
	}
}

func TestFetchURLContentErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := FetchURLContent(context.Background(), server.URL); err == nil {
		t.Error("expected error for non-200 status")
	}
}
