package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/calscrape/internal/backoff"
	"github.com/mfenderov/calscrape/internal/cache"
	"github.com/mfenderov/calscrape/internal/errs"
	"github.com/mfenderov/calscrape/internal/markdown"
	"github.com/mfenderov/calscrape/pkg/models"
)

const (
	DefaultUserAgent = "calscrape/1.0"
	DefaultTimeout   = 30 * time.Second
)

// Config holds scraper configuration.
type Config struct {
	UserAgent        string         `mapstructure:"user_agent"`
	Timeout          time.Duration  `mapstructure:"timeout"`
	TryMarkdownFirst bool           `mapstructure:"try_markdown_first"` // Try to fetch markdown version of pages
	Retry            backoff.Policy `mapstructure:"retry"`
	CacheTTL         time.Duration  `mapstructure:"cache_ttl"`
}

// FetchOptions are per-request overrides.
type FetchOptions struct {
	Headers   map[string]string
	UserAgent string
	Timeout   time.Duration
}

// Scraper fetches single web pages.
type Scraper struct {
	config Config
	cache  cache.Cache
}

// New creates a new Scraper. The cache may be nil.
func New(config Config, c cache.Cache) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = backoff.DefaultPolicy()
	}
	return &Scraper{config: config, cache: c}
}

// Fetch retrieves a single page. Cached content is returned without a
// network call. Transient failures are retried according to the
// configured policy.
func (s *Scraper) Fetch(ctx context.Context, pageURL string, opts FetchOptions) (*models.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.Fetch("scraper.Fetch", 0, false, fmt.Errorf("invalid URL %q", pageURL))
	}

	opts = s.withDefaults(opts)
	key := cache.Key(pageURL, opts.Headers)
	if s.cache != nil {
		if entry, ok := s.cache.Get(key); ok {
			slog.Debug("cache hit", "url", pageURL)
			contentType, content := decodeEntry(entry)
			return &models.Document{
				ID:          models.GenerateDocumentID(pageURL),
				URL:         pageURL,
				Content:     content,
				ContentType: contentType,
				FetchedAt:   time.Now(),
				FromCache:   true,
			}, nil
		}
	}

	slog.Debug("fetching page", "url", pageURL, "timeout", opts.Timeout)

	doc, err := backoff.DoValue(ctx, s.config.Retry, errs.IsRetryable, func(ctx context.Context) (*models.Document, error) {
		return s.fetchOnce(ctx, pageURL, opts)
	})
	if err != nil {
		slog.Debug("fetch failed", "url", pageURL, "error", err)
		return nil, err
	}

	if s.config.TryMarkdownFirst && !markdown.Detect(doc.URL, doc.ContentType, doc.Content) {
		if md, ok := s.tryMarkdownVariants(ctx, pageURL, opts); ok {
			slog.Debug("using markdown variant", "url", pageURL, "variant", md.URL)
			doc.Content = md.Content
			doc.ContentType = md.ContentType
		}
	}

	if s.cache != nil {
		s.cache.Set(key, encodeEntry(doc.ContentType, doc.Content), s.config.CacheTTL)
	}

	slog.Debug("fetched page", "url", pageURL, "content_type", doc.ContentType, "size", len(doc.Content))
	return doc, nil
}

// Cache entries carry the content type on the first line.
func encodeEntry(contentType, content string) string {
	return contentType + "\n" + content
}

func decodeEntry(entry string) (contentType, content string) {
	contentType, content, ok := strings.Cut(entry, "\n")
	if !ok {
		return "", entry
	}
	return contentType, content
}

func (s *Scraper) withDefaults(opts FetchOptions) FetchOptions {
	if opts.UserAgent == "" {
		opts.UserAgent = s.config.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.config.Timeout
	}
	return opts
}

// fetchOnce performs one request through a fresh collector.
func (s *Scraper) fetchOnce(ctx context.Context, pageURL string, opts FetchOptions) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)

	var (
		doc      *models.Document
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("fetch cancelled", "url", r.URL.String())
			r.Abort()
			return
		}
		for k, v := range opts.Headers {
			r.Headers.Set(k, v)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		doc = &models.Document{
			ID:          models.GenerateDocumentID(pageURL),
			URL:         r.Request.URL.String(),
			Content:     string(r.Body),
			ContentType: r.Headers.Get("Content-Type"),
			FetchedAt:   time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = classify(status, err)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = classify(0, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errs.Fetch("scraper.Fetch", 0, true, errors.New("no response received"))
	}
	return doc, nil
}

// classify maps a transport outcome to a typed fetch error.
func classify(status int, err error) error {
	if status != 0 {
		return errs.Fetch("scraper.Fetch", status, false, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errs.Fetch("scraper.Fetch", 0, false, fmt.Errorf("failed to resolve host: %w", err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Timeouts and other transport failures are transient.
	return errs.Fetch("scraper.Fetch", 0, true, err)
}

// tryMarkdownVariants attempts markdown versions of the URL with a single
// attempt each.
func (s *Scraper) tryMarkdownVariants(ctx context.Context, pageURL string, opts FetchOptions) (*models.Document, bool) {
	for _, variantURL := range markdown.URLVariants(pageURL) {
		if ctx.Err() != nil {
			return nil, false
		}
		doc, err := s.fetchOnce(ctx, variantURL, opts)
		if err != nil {
			continue
		}
		if markdown.Detect(variantURL, doc.ContentType, doc.Content) {
			return doc, true
		}
	}
	return nil, false
}
