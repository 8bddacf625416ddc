package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfenderov/calscrape/internal/config"
	"github.com/mfenderov/calscrape/internal/pipeline"
	"github.com/mfenderov/calscrape/pkg/models"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Sources = []config.Source{
		{Name: "council", URL: "https://example.gov/council", Output: "council.ics"},
		{Name: "library", URL: "https://library.example.org/events"},
		{Name: "empty"},
	}
	return &cfg
}

func TestResolveTargets(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		source    string
		wantNames []string
		wantErr   bool
	}{
		{name: "all sources", wantNames: []string{"council", "library"}},
		{name: "one source", source: "library", wantNames: []string{"library"}},
		{name: "unknown source", source: "zoo", wantErr: true},
		{name: "url only", url: "https://example.com/events", wantNames: []string{""}},
		{name: "url with source settings", url: "https://example.com/events", source: "council", wantNames: []string{"council"}},
		{name: "url with unknown source", url: "https://example.com/events", source: "zoo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := resolveTargets(testConfig(), tt.url, tt.source)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveTargets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(targets) != len(tt.wantNames) {
				t.Fatalf("got %d targets, want %d", len(targets), len(tt.wantNames))
			}
			for i, target := range targets {
				if target.name != tt.wantNames[i] {
					t.Errorf("target[%d].name = %q, want %q", i, target.name, tt.wantNames[i])
				}
				if tt.url != "" && target.url != tt.url {
					t.Errorf("target[%d].url = %q, want %q", i, target.url, tt.url)
				}
			}
		})
	}

	empty := config.Defaults()
	if _, err := resolveTargets(&empty, "", ""); err == nil {
		t.Error("resolveTargets() without sources or url should fail")
	}
}

func TestOutputPath(t *testing.T) {
	cfg := testConfig()
	council := target{name: "council", source: &cfg.Sources[0]}
	library := target{name: "library", source: &cfg.Sources[1]}

	tests := []struct {
		name    string
		flag    string
		target  target
		targets int
		want    string
	}{
		{name: "flag for single target", flag: "out.ics", target: library, targets: 1, want: "out.ics"},
		{name: "source output", target: council, targets: 2, want: "council.ics"},
		{name: "single target stdout", target: library, targets: 1, want: ""},
		{name: "named file for many", target: library, targets: 2, want: "library.ics"},
		{name: "flag ignored for many", flag: "out.ics", target: library, targets: 2, want: "library.ics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scrapeOutput = tt.flag
			defer func() { scrapeOutput = "" }()

			if got := outputPath(tt.target, tt.targets); got != tt.want {
				t.Errorf("outputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCalendar(t *testing.T) {
	content := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	var buf bytes.Buffer
	if err := writeCalendar(&buf, "", content); err != nil {
		t.Fatalf("writeCalendar(stdout) error = %v", err)
	}
	if buf.String() != content {
		t.Errorf("stdout = %q, want calendar", buf.String())
	}

	path := filepath.Join(t.TempDir(), "events.ics")
	if err := writeCalendar(&buf, path, content); err != nil {
		t.Fatalf("writeCalendar(file) error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != content {
		t.Errorf("file = %q, want calendar", data)
	}
}

func TestCompleteEvent(t *testing.T) {
	result := &pipeline.Result{
		Events:     []models.CalendarEvent{{Title: "Board Meeting"}},
		ICSContent: "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		Metadata:   pipeline.Metadata{PageTitle: "Council", Warnings: []string{"w"}},
		Document:   &models.Document{Content: "<html></html>", ContentType: "text/html"},
	}
	tgt := target{name: "council", url: "https://example.gov/council"}

	ev := completeEvent(tgt, result, true)
	if ev.RunID == "" {
		t.Error("RunID should be set")
	}
	if ev.SourceURL != tgt.url {
		t.Errorf("SourceURL = %q, want target url fallback", ev.SourceURL)
	}
	if ev.PageContent == "" || ev.ContentType != "text/html" {
		t.Errorf("page not carried: %+v", ev)
	}

	ev = completeEvent(tgt, result, false)
	if ev.PageContent != "" {
		t.Error("page should not be carried when archiving pages is off")
	}
}

func TestFormatWhen(t *testing.T) {
	start := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)

	got := formatWhen(start, start.Add(time.Hour), "America/New_York")
	want := "Fri Mar 14 2025 19:00 - 20:00 America/New_York"
	if got != want {
		t.Errorf("formatWhen() = %q, want %q", got, want)
	}

	got = formatWhen(start, start.Add(2*time.Hour), "UTC")
	want = "Fri Mar 14 2025 23:00 - Sat Mar 15 2025 01:00 UTC"
	if got != want {
		t.Errorf("formatWhen() = %q, want %q", got, want)
	}
}
