package events

import (
	"time"

	"github.com/mfenderov/calscrape/pkg/models"
)

// ExtractionCompleteEvent is sent when a pipeline run produced a result
// worth publishing.
type ExtractionCompleteEvent struct {
	RunID       string                 // Short run identifier (e.g., "a1b2c3d4")
	SourceName  string                 // Configured source name, empty for ad-hoc URLs
	SourceURL   string                 // URL that was scraped
	PageTitle   string                 // Title of the fetched page
	Events      []models.CalendarEvent // Validated events
	ICSContent  string                 // Generated calendar
	PageContent string                 // Raw fetched page, empty when not archived
	ContentType string                 // Content-Type of PageContent
	Warnings    []string               // Non-fatal warnings of the run
	Timestamp   time.Time              // When the run completed
}

// IngestionCompleteEvent is sent when a run has been archived and indexed.
type IngestionCompleteEvent struct {
	RunID         string        // Run that was ingested
	Prefix        string        // S3 prefix of the archived run, empty when storage is off
	EventsIndexed int           // Number of events indexed
	Duration      time.Duration // How long ingestion took
	Errors        []string      // Any errors encountered (non-fatal)
}
