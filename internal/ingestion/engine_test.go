package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/calscrape/internal/events"
	"github.com/mfenderov/calscrape/internal/storage"
	"github.com/mfenderov/calscrape/pkg/models"
)

type fakeArchive struct {
	mu          sync.Mutex
	objects     map[string]string
	meta        map[string]storage.RunMetadata
	failCal     bool
	failPage    bool
	eventCounts map[string]int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		objects:     map[string]string{},
		meta:        map[string]storage.RunMetadata{},
		eventCounts: map[string]int{},
	}
}

func (f *fakeArchive) PutCalendar(_ context.Context, prefix, content string) error {
	if f.failCal {
		return errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[prefix+"/calendar.ics"] = content
	return nil
}

func (f *fakeArchive) PutEvents(_ context.Context, prefix string, evs []models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCounts[prefix] = len(evs)
	return nil
}

func (f *fakeArchive) PutPage(_ context.Context, prefix, filename, _, content string) error {
	if f.failPage {
		return errors.New("page too large")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[prefix+"/pages/"+filename] = content
	return nil
}

func (f *fakeArchive) PutMetadata(_ context.Context, prefix string, meta storage.RunMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[prefix] = meta
	return nil
}

type fakeIndex struct {
	created   int
	refreshed int
	indexed   map[string]int
	failAfter int
	failIndex bool
}

func (f *fakeIndex) CreateIndex(context.Context) error {
	f.created++
	return nil
}

func (f *fakeIndex) IndexEvents(_ context.Context, runID, _ string, evs []models.CalendarEvent) (int, error) {
	if f.indexed == nil {
		f.indexed = map[string]int{}
	}
	if f.failIndex {
		f.indexed[runID] = f.failAfter
		return f.failAfter, errors.New("mapper_parsing_exception")
	}
	f.indexed[runID] = len(evs)
	return len(evs), nil
}

func (f *fakeIndex) Refresh(context.Context) error {
	f.refreshed++
	return nil
}

func completedRun(runID string) events.ExtractionCompleteEvent {
	start := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	return events.ExtractionCompleteEvent{
		RunID:      runID,
		SourceName: "city-council",
		SourceURL:  "https://example.gov/events",
		PageTitle:  "Council Calendar",
		Events: []models.CalendarEvent{
			{UID: "a@calscrape", Title: "Board Meeting", Start: start, End: start.Add(time.Hour), Timezone: "UTC"},
			{UID: "b@calscrape", Title: "Budget Workshop", Start: start.AddDate(0, 0, 7), End: start.AddDate(0, 0, 7).Add(time.Hour), Timezone: "UTC"},
		},
		ICSContent:  "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		PageContent: "<html><body><h1>Council Calendar</h1></body></html>",
		ContentType: "text/html",
		Warnings:    []string{"chunk 2 failed: timeout"},
		Timestamp:   start.Add(24 * time.Hour),
	}
}

func TestEngine_Ingest(t *testing.T) {
	archive := newFakeArchive()
	index := &fakeIndex{}
	engine := New(archive, index)

	result, err := engine.Ingest(t.Context(), completedRun("run1"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	wantPrefix := "runs/example.gov/2025-03-15T18-00-00-run1"
	if result.Prefix != wantPrefix {
		t.Errorf("Prefix = %q, want %q", result.Prefix, wantPrefix)
	}
	if result.EventsIndexed != 2 {
		t.Errorf("EventsIndexed = %d, want 2", result.EventsIndexed)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	if _, ok := archive.objects[wantPrefix+"/calendar.ics"]; !ok {
		t.Error("calendar was not archived")
	}
	if archive.eventCounts[wantPrefix] != 2 {
		t.Errorf("archived %d events, want 2", archive.eventCounts[wantPrefix])
	}
	pageKey := wantPrefix + "/pages/" + models.GenerateDocumentID("https://example.gov/events") + ".html"
	if _, ok := archive.objects[pageKey]; !ok {
		t.Errorf("page not archived under %q", pageKey)
	}

	meta := archive.meta[wantPrefix]
	if meta.EventCount != 2 || !meta.HasPage || meta.SourceName != "city-council" {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Warnings) != 1 {
		t.Errorf("metadata warnings = %v, want run warnings carried", meta.Warnings)
	}

	if index.created != 1 || index.refreshed != 1 {
		t.Errorf("index created=%d refreshed=%d, want 1 and 1", index.created, index.refreshed)
	}
}

func TestEngine_Ingest_MarkdownPage(t *testing.T) {
	archive := newFakeArchive()
	run := completedRun("run1")
	run.SourceURL = "https://example.gov/events.md"
	run.ContentType = "text/markdown"
	run.PageContent = "# Events\n\n- Board Meeting"

	result, err := New(archive, nil).Ingest(t.Context(), run)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	found := false
	for key := range archive.objects {
		if strings.HasPrefix(key, result.Prefix+"/pages/") && strings.HasSuffix(key, ".md") {
			found = true
		}
	}
	if !found {
		t.Errorf("markdown page not archived with .md extension: %v", archive.objects)
	}
}

func TestEngine_Ingest_PartialFailures(t *testing.T) {
	tests := []struct {
		name        string
		archive     *fakeArchive
		index       *fakeIndex
		wantErr     bool
		wantErrors  int
		wantIndexed int
	}{
		{
			name:    "calendar failure is fatal",
			archive: &fakeArchive{failCal: true},
			wantErr: true,
		},
		{
			name:        "page failure is collected",
			archive:     func() *fakeArchive { a := newFakeArchive(); a.failPage = true; return a }(),
			index:       &fakeIndex{},
			wantErrors:  1,
			wantIndexed: 2,
		},
		{
			name:        "index failure keeps count",
			index:       &fakeIndex{failIndex: true, failAfter: 1},
			wantErrors:  1,
			wantIndexed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var archive Archive
			if tt.archive != nil {
				archive = tt.archive
			}
			var index Index
			if tt.index != nil {
				index = tt.index
			}

			result, err := New(archive, index).Ingest(t.Context(), completedRun("run1"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ingest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(result.Errors) != tt.wantErrors {
				t.Errorf("Errors = %v, want %d", result.Errors, tt.wantErrors)
			}
			if result.EventsIndexed != tt.wantIndexed {
				t.Errorf("EventsIndexed = %d, want %d", result.EventsIndexed, tt.wantIndexed)
			}
		})
	}
}

func TestEngine_Run(t *testing.T) {
	archive := newFakeArchive()
	index := &fakeIndex{}
	engine := New(archive, index)

	in := make(chan events.ExtractionCompleteEvent)
	out := engine.Run(t.Context(), in)

	go func() {
		defer close(in)
		for _, id := range []string{"run1", "run2", "run3"} {
			in <- completedRun(id)
		}
	}()

	var got []string
	for result := range out {
		got = append(got, result.RunID)
	}

	if strings.Join(got, ",") != "run1,run2,run3" {
		t.Errorf("Run() results = %v, want runs in order", got)
	}
	if len(index.indexed) != 3 {
		t.Errorf("indexed %d runs, want 3", len(index.indexed))
	}
}

func TestEngine_Run_ReportsFailures(t *testing.T) {
	engine := New(&fakeArchive{failCal: true}, nil)

	in := make(chan events.ExtractionCompleteEvent, 1)
	in <- completedRun("run1")
	close(in)

	var results []events.IngestionCompleteEvent
	for result := range engine.Run(t.Context(), in) {
		results = append(results, result)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Errors) != 1 || !strings.Contains(results[0].Errors[0], "bucket unavailable") {
		t.Errorf("Errors = %v, want calendar failure", results[0].Errors)
	}
}

func TestEngine_Run_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	in := make(chan events.ExtractionCompleteEvent)
	out := New(nil, nil).Run(ctx, in)

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
