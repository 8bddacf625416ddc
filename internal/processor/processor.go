// Package processor turns raw page content into ranked semantic chunks,
// structured event candidates and page metadata.
package processor

import (
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/mfenderov/calscrape/internal/markdown"
	"github.com/mfenderov/calscrape/pkg/models"
	"golang.org/x/net/html"
)

const minMainContentChars = 100

// Options tunes chunk selection.
type Options struct {
	MaxChunks        int     `mapstructure:"max_chunks"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
	MinBlockChars    int     `mapstructure:"min_block_chars"`
	MaxBlockChars    int     `mapstructure:"max_block_chars"`
	FallbackChunks   int     `mapstructure:"fallback_chunks"`
}

// DefaultOptions returns the standard chunk selection settings.
func DefaultOptions() Options {
	return Options{
		MaxChunks:        20,
		QualityThreshold: 0.2,
		MinBlockChars:    20,
		MaxBlockChars:    2000,
		FallbackChunks:   5,
	}
}

// Result is everything extracted from one page.
type Result struct {
	Markdown   string
	Chunks     []models.SemanticChunk
	Structured []models.StructuredEvent
	Metadata   Metadata
}

// Processor converts page content for extraction.
type Processor struct {
	opts Options
}

// New creates a Processor with DefaultOptions.
func New() *Processor {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a Processor. Zero fields take their defaults.
func NewWithOptions(opts Options) *Processor {
	def := DefaultOptions()
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = def.MaxChunks
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = def.QualityThreshold
	}
	if opts.MinBlockChars <= 0 {
		opts.MinBlockChars = def.MinBlockChars
	}
	if opts.MaxBlockChars <= 0 {
		opts.MaxBlockChars = def.MaxBlockChars
	}
	if opts.FallbackChunks <= 0 {
		opts.FallbackChunks = def.FallbackChunks
	}
	return &Processor{opts: opts}
}

// Process cleans HTML, reads structured data and ranks content chunks.
// It never fails; malformed markup yields fewer chunks.
func (p *Processor) Process(htmlContent string) *Result {
	res := &Result{}
	if strings.TrimSpace(htmlContent) == "" {
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		slog.Debug("failed to parse HTML", "error", err)
		return res
	}

	if len(doc.Nodes) > 0 {
		res.Metadata = extractMetadata(doc.Nodes[0])
	}
	res.Structured = extractStructured(doc)

	clean(doc)

	main, inMain := mainContent(doc)
	res.Chunks = p.rank(p.htmlChunks(main, inMain))

	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	if cleaned, err := goquery.OuterHtml(body); err == nil {
		if md, err := p.Convert(cleaned); err == nil {
			res.Markdown = md
		}
	}
	if res.Markdown == "" && body.Length() > 0 {
		res.Markdown = nodeText(body.Get(0))
	}

	slog.Debug("processed HTML",
		"chunks", len(res.Chunks),
		"structured", len(res.Structured),
		"main_content", inMain,
		"title", res.Metadata.Title)
	return res
}

// ProcessMarkdown ranks chunks of pre-rendered markdown. Markdown carries no
// structured data.
func (p *Processor) ProcessMarkdown(md string) *Result {
	res := &Result{Markdown: strings.TrimSpace(md)}
	if res.Markdown == "" {
		return res
	}
	res.Metadata.Title = markdown.ExtractTitle(md)
	res.Chunks = p.rank(p.markdownChunks(md))

	slog.Debug("processed markdown", "chunks", len(res.Chunks), "title", res.Metadata.Title)
	return res
}

// Convert transforms HTML content into Markdown.
func (p *Processor) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	md, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(md), nil
}

// ExtractTitle returns the page title, falling back to og:title and the
// first <h1>.
func (p *Processor) ExtractTitle(htmlContent string) string {
	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return extractMetadata(root).Title
}
