package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/calscrape/internal/backoff"
	"github.com/mfenderov/calscrape/internal/cache"
	"github.com/mfenderov/calscrape/internal/errs"
	"github.com/mfenderov/calscrape/internal/markdown"
)

func testConfig() Config {
	return Config{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Retry: backoff.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

func TestScraper_FetchSingleURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
			<head><title>Test Page</title></head>
			<body>
				<h1>Hello World</h1>
				<p>This is a test page.</p>
			</body>
			</html>
		`))
	}))
	defer server.Close()

	s := New(testConfig(), nil)

	doc, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if !strings.HasPrefix(doc.URL, server.URL) {
		t.Errorf("URL = %q, want prefix %q", doc.URL, server.URL)
	}
	if !strings.Contains(doc.Content, "Hello World") {
		t.Error("Content should contain 'Hello World'")
	}
	if doc.ContentType != "text/html" {
		t.Errorf("ContentType = %q, want text/html", doc.ContentType)
	}
	if doc.FetchedAt.IsZero() {
		t.Error("FetchedAt should not be zero")
	}
	if doc.ID == "" {
		t.Error("ID should be set")
	}
}

func TestScraper_SetsUserAgentAndHeaders(t *testing.T) {
	var receivedUA, receivedLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		receivedLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Test</body></html>`))
	}))
	defer server.Close()

	s := New(testConfig(), nil)

	_, err := s.Fetch(t.Context(), server.URL, FetchOptions{
		UserAgent: "calscrape-test/2.0",
		Headers:   map[string]string{"Accept-Language": "de-DE"},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if receivedUA != "calscrape-test/2.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "calscrape-test/2.0")
	}
	if receivedLang != "de-DE" {
		t.Errorf("Accept-Language = %q, want %q", receivedLang, "de-DE")
	}
}

func TestScraper_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Recovered</body></html>`))
	}))
	defer server.Close()

	s := New(testConfig(), nil)

	doc, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(doc.Content, "Recovered") {
		t.Errorf("Content = %q, want recovered page", doc.Content)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestScraper_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "Internal Error", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := New(testConfig(), nil)

	_, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err == nil {
		t.Fatal("Fetch() should fail")
	}
	if errs.KindOf(err) != errs.KindFetch {
		t.Errorf("KindOf() = %q, want %q", errs.KindOf(err), errs.KindFetch)
	}
	if !errs.IsRetryable(err) {
		t.Error("5xx should be marked retryable")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestScraper_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := New(testConfig(), nil)

	_, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err == nil {
		t.Fatal("Fetch() should fail for 404")
	}
	if errs.IsRetryable(err) {
		t.Error("4xx should not be retryable")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestScraper_InvalidURL(t *testing.T) {
	s := New(testConfig(), nil)

	tests := []string{"", "not a url", "ftp://example.com/file", "/relative/path"}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			_, err := s.Fetch(t.Context(), u, FetchOptions{})
			if err == nil {
				t.Fatal("Fetch() should fail")
			}
			if errs.IsRetryable(err) {
				t.Error("invalid URL should not be retryable")
			}
		})
	}
}

func TestScraper_UsesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Cached</body></html>`))
	}))
	defer server.Close()

	s := New(testConfig(), cache.NewMemory(time.Minute, 10))

	first, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second, err := s.Fetch(t.Context(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if first.FromCache {
		t.Error("first fetch should not come from cache")
	}
	if !second.FromCache {
		t.Error("second fetch should come from cache")
	}
	if second.Content != first.Content {
		t.Error("cached content should match")
	}
	if second.ContentType != "text/html" {
		t.Errorf("cached ContentType = %q, want text/html", second.ContentType)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}

	// Different headers are a different cache entry.
	if _, err := s.Fetch(t.Context(), server.URL, FetchOptions{Headers: map[string]string{"X-Test": "1"}}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestScraper_CacheKeepsMarkdownContentType(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte("Spring Gala, March 3 at 6pm"))
	}))
	defer server.Close()

	s := New(testConfig(), cache.NewMemory(time.Minute, 10))
	if _, err := s.Fetch(t.Context(), server.URL+"/events", FetchOptions{}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	doc, err := s.Fetch(t.Context(), server.URL+"/events", FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !doc.FromCache || calls.Load() != 1 {
		t.Fatalf("FromCache = %v after %d calls, want a cache hit", doc.FromCache, calls.Load())
	}
	if doc.Content != "Spring Gala, March 3 at 6pm" {
		t.Errorf("Content = %q", doc.Content)
	}
	if !markdown.Detect(doc.URL, doc.ContentType, doc.Content) {
		t.Errorf("cached document with ContentType %q not detected as markdown", doc.ContentType)
	}
}

func TestScraper_PrefersMarkdownVariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><p>Events</p></body></html>`))
		case "/events.md":
			w.Header().Set("Content-Type", "text/markdown")
			w.Write([]byte("# Events\n\n- Spring Gala, March 3"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.TryMarkdownFirst = true
	s := New(cfg, nil)

	doc, err := s.Fetch(t.Context(), server.URL+"/events", FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasPrefix(doc.Content, "# Events") {
		t.Errorf("Content = %q, want markdown variant", doc.Content)
	}
	if doc.ContentType != "text/markdown" {
		t.Errorf("ContentType = %q, want text/markdown", doc.ContentType)
	}
}

func TestScraper_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Test</body></html>`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	s := New(testConfig(), nil)
	if _, err := s.Fetch(ctx, server.URL, FetchOptions{}); err == nil {
		t.Error("Fetch() should fail with a cancelled context")
	}
}
