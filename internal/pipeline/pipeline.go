// Package pipeline wires fetching, processing, extraction, deduplication
// and calendar generation into a single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mfenderov/calscrape/internal/dedup"
	"github.com/mfenderov/calscrape/internal/errs"
	"github.com/mfenderov/calscrape/internal/extraction"
	"github.com/mfenderov/calscrape/internal/ics"
	"github.com/mfenderov/calscrape/internal/markdown"
	"github.com/mfenderov/calscrape/internal/processor"
	"github.com/mfenderov/calscrape/internal/scraper"
	"github.com/mfenderov/calscrape/pkg/models"
	"github.com/samber/lo"
)

// Mode selects what the model sees.
type Mode string

const (
	// ModeDocument sends the whole converted page in one conversation.
	ModeDocument Mode = "document"
	// ModeChunks sends each ranked chunk in its own conversation.
	ModeChunks Mode = "chunks"
)

// Fetcher retrieves a page. *scraper.Scraper satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts scraper.FetchOptions) (*models.Document, error)
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Fetcher   Fetcher
	LLM       extraction.Completer
	Processor *processor.Processor
}

// Options configure the stages of every run.
type Options struct {
	Engine extraction.Options
	Batch  extraction.BatchOptions
	ICS    ics.Options
}

// DefaultOptions returns production settings for every stage.
func DefaultOptions() Options {
	return Options{
		Engine: extraction.DefaultOptions(),
		Batch:  extraction.DefaultBatchOptions(),
		ICS:    ics.DefaultOptions(),
	}
}

// Config describes one run. URL is required unless Content is supplied.
type Config struct {
	URL               string
	Content           string
	ContentType       string
	Headers           map[string]string
	Timezone          string
	Language          string
	AdditionalContext string
	CurrentDate       time.Time
	Mode              Mode
	MinChunks         int
	Fuzzy             bool
	Deadline          time.Duration
	CalendarName      string
}

// Metadata summarizes a run.
type Metadata struct {
	TotalEvents      int      `json:"total_events"`
	ProcessedEvents  int      `json:"processed_events"`
	FailedEvents     int      `json:"failed_events"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Warnings         []string `json:"warnings"`
	PageTitle        string   `json:"page_title,omitempty"`
	ChunksProcessed  int      `json:"chunks_processed"`
	StructuredEvents int      `json:"structured_events"`
	DetectedTimezone string   `json:"detected_timezone,omitempty"`
	SourceURL        string   `json:"source_url,omitempty"`
	FromCache        bool     `json:"from_cache,omitempty"`
}

// Result is a finished run.
type Result struct {
	Events     []models.CalendarEvent `json:"events"`
	Invalid    []dedup.InvalidEvent   `json:"invalid,omitempty"`
	ICSContent string                 `json:"ics_content"`
	Metadata   Metadata               `json:"metadata"`
	Document   *models.Document       `json:"-"`
}

// Pipeline runs extractions.
type Pipeline struct {
	deps   Deps
	opts   Options
	engine *extraction.Engine
}

// New creates a pipeline. A nil Processor gets the default one.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Processor == nil {
		deps.Processor = processor.New()
	}
	if opts.Engine.Timezones == nil {
		opts.Engine.Timezones = extraction.DefaultTimezoneTable()
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		engine: extraction.New(deps.LLM, opts.Engine),
	}
}

// Run executes one extraction. The returned error means no usable result
// exists; recoverable problems are reported in Metadata.Warnings.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	return p.run(ctx, cfg, nil)
}

type emitFunc func(Progress)

func (p *Pipeline) run(ctx context.Context, cfg Config, emit emitFunc) (*Result, error) {
	started := time.Now()
	if emit == nil {
		emit = func(Progress) {}
	}
	if err := p.validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	res := &Result{}
	warn := func(w string) {
		res.Metadata.Warnings = append(res.Metadata.Warnings, w)
	}

	emit(status("fetching"))
	doc, err := p.document(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res.Document = doc
	res.Metadata.SourceURL = doc.URL
	res.Metadata.FromCache = doc.FromCache

	emit(status("processing"))
	var processed *processor.Result
	if markdown.Detect(doc.URL, doc.ContentType, doc.Content) {
		processed = p.deps.Processor.ProcessMarkdown(doc.Content)
	} else {
		processed = p.deps.Processor.Process(doc.Content)
	}
	res.Metadata.PageTitle = processed.Metadata.Title

	ec := models.ExtractionContext{
		SourceURL:         doc.URL,
		Timezone:          cfg.Timezone,
		CurrentDate:       cfg.CurrentDate,
		Language:          lo.Ternary(cfg.Language != "", cfg.Language, processed.Metadata.Language),
		AdditionalContext: cfg.AdditionalContext,
	}
	if ec.CurrentDate.IsZero() {
		ec.CurrentDate = time.Now()
	}

	var structured []models.CalendarEvent
	for _, se := range processed.Structured {
		ev, err := extraction.FromStructured(se, ec, processed.Markdown, p.opts.Engine.Timezones)
		if err != nil {
			warn(err.Error())
			continue
		}
		structured = append(structured, ev)
		emit(eventProgress(ev))
	}
	res.Metadata.StructuredEvents = len(structured)

	if cfg.MinChunks > 0 && len(processed.Chunks) < cfg.MinChunks && len(structured) == 0 {
		return nil, errs.Processing("pipeline.Run",
			fmt.Errorf("found %d content chunks, need at least %d", len(processed.Chunks), cfg.MinChunks))
	}

	emit(status("extracting"))
	extracted, err := p.extract(ctx, cfg, processed, ec, func(ev models.CalendarEvent) { emit(eventProgress(ev)) }, res)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			warn(fmt.Sprintf("extraction interrupted: %v", err))
		case len(structured) > 0:
			warn(fmt.Sprintf("LLM extraction failed, using structured data only: %v", err))
		default:
			return nil, err
		}
	}

	emit(status("deduplicating"))
	merged := append(structured, extracted...)
	if cfg.Fuzzy {
		merged = dedup.DeduplicateFuzzy(merged)
	} else {
		merged = dedup.Deduplicate(merged)
	}
	res.Metadata.TotalEvents = len(merged)

	valid, invalid := dedup.Validate(merged)
	for _, iv := range invalid {
		warn(iv.Warning())
	}

	emit(status("generating calendar"))
	icsOpts := p.opts.ICS
	if cfg.CalendarName != "" {
		icsOpts.Name = cfg.CalendarName
	} else if res.Metadata.PageTitle != "" {
		icsOpts.Name = res.Metadata.PageTitle
	}
	if cfg.Timezone != "" && icsOpts.Timezone == "" {
		icsOpts.Timezone = cfg.Timezone
	}
	out := ics.Generate(valid, icsOpts)
	for _, skipErr := range out.Skipped {
		warn(skipErr.Error())
	}

	res.Events = valid
	res.Invalid = invalid
	res.ICSContent = out.Content
	res.Metadata.ProcessedEvents = out.Events
	res.Metadata.FailedEvents = len(invalid) + len(out.Skipped)
	res.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()

	slog.Info("Extraction complete",
		"url", doc.URL,
		"events", len(res.Events),
		"invalid", len(res.Invalid),
		"warnings", len(res.Metadata.Warnings),
		"duration_ms", res.Metadata.ProcessingTimeMs)
	return res, nil
}

func (p *Pipeline) validate(cfg Config) error {
	if p.deps.LLM == nil {
		return errs.Config("pipeline.Run", "an LLM client is required")
	}
	switch cfg.Mode {
	case "", ModeDocument, ModeChunks:
	default:
		return errs.Config("pipeline.Run", "unknown extraction mode %q", cfg.Mode)
	}
	if cfg.URL == "" {
		if strings.TrimSpace(cfg.Content) == "" {
			return errs.Config("pipeline.Run", "a URL or content is required")
		}
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Config("pipeline.Run", "URL %q must be an absolute http(s) URL", cfg.URL)
	}
	if cfg.Content == "" && p.deps.Fetcher == nil {
		return errs.Config("pipeline.Run", "a fetcher is required to retrieve %s", cfg.URL)
	}
	return nil
}

func (p *Pipeline) document(ctx context.Context, cfg Config) (*models.Document, error) {
	if cfg.Content != "" {
		return &models.Document{
			ID:          models.GenerateDocumentID(cfg.URL + cfg.Content),
			URL:         cfg.URL,
			Content:     cfg.Content,
			ContentType: cfg.ContentType,
			FetchedAt:   time.Now(),
		}, nil
	}
	doc, err := p.deps.Fetcher.Fetch(ctx, cfg.URL, scraper.FetchOptions{Headers: cfg.Headers})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", cfg.URL, err)
	}
	return doc, nil
}

// extract runs the model over the chunks or the whole document.
func (p *Pipeline) extract(ctx context.Context, cfg Config, processed *processor.Result, ec models.ExtractionContext, sink extraction.EventSink, res *Result) ([]models.CalendarEvent, error) {
	if cfg.Mode == ModeChunks && len(processed.Chunks) > 0 {
		texts := lo.Map(processed.Chunks, func(c models.SemanticChunk, _ int) string { return c.Content })
		br, err := p.engine.ExtractBatch(ctx, texts, ec, p.opts.Batch, sink)
		if br != nil {
			res.Metadata.ChunksProcessed = br.ChunksProcessed
			res.Metadata.DetectedTimezone = br.DetectedTimezone
			res.Metadata.Warnings = append(res.Metadata.Warnings, br.Warnings...)
			if err == nil || len(br.Events) > 0 {
				return br.Events, nil
			}
		}
		return nil, err
	}

	content := processed.Markdown
	if strings.TrimSpace(content) == "" {
		res.Metadata.Warnings = append(res.Metadata.Warnings, "page has no text content to extract from")
		return nil, nil
	}
	cr, err := p.engine.Extract(ctx, content, ec, sink)
	if cr != nil {
		if cr.State == extraction.StateDone {
			res.Metadata.ChunksProcessed = 1
		}
		res.Metadata.DetectedTimezone = cr.DetectedTimezone
		res.Metadata.Warnings = append(res.Metadata.Warnings, cr.Warnings...)
	}
	if err != nil {
		return nil, err
	}
	return cr.Events, nil
}
