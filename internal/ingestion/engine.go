package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/calscrape/internal/events"
	"github.com/mfenderov/calscrape/internal/markdown"
	"github.com/mfenderov/calscrape/internal/storage"
	"github.com/mfenderov/calscrape/pkg/models"
)

// Archive stores the artifacts of a run.
type Archive interface {
	PutCalendar(ctx context.Context, prefix, content string) error
	PutEvents(ctx context.Context, prefix string, events []models.CalendarEvent) error
	PutPage(ctx context.Context, prefix, filename, contentType, content string) error
	PutMetadata(ctx context.Context, prefix string, meta storage.RunMetadata) error
}

// Index makes extracted events searchable.
type Index interface {
	CreateIndex(ctx context.Context) error
	IndexEvents(ctx context.Context, runID, sourceURL string, events []models.CalendarEvent) (int, error)
	Refresh(ctx context.Context) error
}

// Engine archives completed extraction runs and indexes their events.
// Either target may be nil when it is not configured.
type Engine struct {
	archive Archive
	index   Index
}

// New creates a new ingestion engine.
func New(archive Archive, index Index) *Engine {
	return &Engine{archive: archive, index: index}
}

// Ingest archives one run and indexes its events. Failures of secondary
// artifacts are collected in the result; a failure to store the calendar
// or to prepare the index is returned as an error.
func (e *Engine) Ingest(ctx context.Context, ev events.ExtractionCompleteEvent) (*events.IngestionCompleteEvent, error) {
	start := time.Now()
	result := &events.IngestionCompleteEvent{RunID: ev.RunID}

	slog.Info("starting ingestion", "run", ev.RunID, "url", ev.SourceURL, "events", len(ev.Events))

	if e.archive != nil {
		prefix, err := e.store(ctx, ev, result)
		if err != nil {
			return nil, err
		}
		result.Prefix = prefix
	}

	if e.index != nil {
		if err := e.index.CreateIndex(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare index: %w", err)
		}

		n, err := e.index.IndexEvents(ctx, ev.RunID, ev.SourceURL, ev.Events)
		result.EventsIndexed = n
		if err != nil {
			slog.Error("failed to index events", "run", ev.RunID, "error", err)
			result.Errors = append(result.Errors, err.Error())
		}

		// Refresh index to make events searchable immediately
		if err := e.index.Refresh(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to refresh index: %v", err))
		}
	}

	result.Duration = time.Since(start)
	slog.Info("ingestion complete",
		"run", ev.RunID,
		"prefix", result.Prefix,
		"events_indexed", result.EventsIndexed,
		"duration", result.Duration,
		"errors", len(result.Errors))

	return result, nil
}

func (e *Engine) store(ctx context.Context, ev events.ExtractionCompleteEvent, result *events.IngestionCompleteEvent) (string, error) {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	prefix, err := storage.RunPrefix(ev.SourceURL, at, ev.RunID)
	if err != nil {
		return "", err
	}

	if err := e.archive.PutCalendar(ctx, prefix, ev.ICSContent); err != nil {
		return "", err
	}

	if err := e.archive.PutEvents(ctx, prefix, ev.Events); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	hasPage := false
	if ev.PageContent != "" {
		if err := e.archive.PutPage(ctx, prefix, pageFilename(ev), ev.ContentType, ev.PageContent); err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else {
			hasPage = true
		}
	}

	meta := storage.RunMetadata{
		RunID:       ev.RunID,
		SourceName:  ev.SourceName,
		SourceURL:   ev.SourceURL,
		PageTitle:   ev.PageTitle,
		Timestamp:   at.UTC(),
		EventCount:  len(ev.Events),
		Warnings:    ev.Warnings,
		HasPage:     hasPage,
		ContentType: ev.ContentType,
	}
	if err := e.archive.PutMetadata(ctx, prefix, meta); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	return prefix, nil
}

// pageFilename names the archived page after its URL hash.
func pageFilename(ev events.ExtractionCompleteEvent) string {
	ext := ".html"
	if markdown.Detect(ev.SourceURL, ev.ContentType, ev.PageContent) {
		ext = ".md"
	}
	return models.GenerateDocumentID(ev.SourceURL) + ext
}

// Run consumes completed extractions until in is closed or ctx is done,
// emitting one IngestionCompleteEvent per run. Runs that fail to ingest
// are reported with the error in Errors. The returned channel is closed
// when the worker exits.
func (e *Engine) Run(ctx context.Context, in <-chan events.ExtractionCompleteEvent) <-chan events.IngestionCompleteEvent {
	out := make(chan events.IngestionCompleteEvent)

	go func() {
		defer close(out)
		for {
			var ev events.ExtractionCompleteEvent
			select {
			case <-ctx.Done():
				return
			case next, ok := <-in:
				if !ok {
					return
				}
				ev = next
			}

			result, err := e.Ingest(ctx, ev)
			if err != nil {
				slog.Error("ingestion failed", "run", ev.RunID, "error", err)
				result = &events.IngestionCompleteEvent{RunID: ev.RunID, Errors: []string{err.Error()}}
			}

			select {
			case out <- *result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
