package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mfenderov/calscrape/pkg/models"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "empty endpoint",
			config:  Config{Endpoint: "", Bucket: "test"},
			wantErr: true,
		},
		{
			name:    "empty bucket",
			config:  Config{Endpoint: "localhost:9000", Bucket: ""},
			wantErr: true,
		},
		{
			name: "valid config",
			config: Config{
				Endpoint:        "localhost:9000",
				Bucket:          "test",
				AccessKeyID:     "minioadmin",
				SecretAccessKey: "minioadmin",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunPrefix(t *testing.T) {
	at := time.Date(2025, 3, 14, 17, 30, 0, 0, time.FixedZone("EST", -5*3600))

	tests := []struct {
		name      string
		sourceURL string
		runID     string
		want      string
		wantErr   bool
	}{
		{
			name:      "host from url",
			sourceURL: "https://events.example.com/calendar?page=2",
			runID:     "abc12345",
			want:      "runs/events.example.com/2025-03-14T22-30-00-abc12345",
		},
		{
			name:      "inline content",
			sourceURL: "",
			runID:     "abc12345",
			want:      "runs/inline/2025-03-14T22-30-00-abc12345",
		},
		{
			name:      "missing run id",
			sourceURL: "https://events.example.com",
			wantErr:   true,
		},
		{
			name:      "unparseable url",
			sourceURL: "http://[::1",
			runID:     "abc12345",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunPrefix(tt.sourceURL, at, tt.runID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunPrefix() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RunPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 8 || strings.Contains(a, "-") {
		t.Errorf("NewRunID() = %q, want 8 hex characters", a)
	}
	if a == b {
		t.Errorf("NewRunID() returned %q twice", a)
	}
}

// TestIntegration_S3Operations tests actual S3 operations against MinIO.
// Skip if MinIO is not running.
func TestIntegration_S3Operations(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := New(Config{
		Endpoint:        endpoint,
		Bucket:          "calscrape-test",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          false,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// Try to ensure bucket - skip if MinIO is not available
	if err := client.EnsureBucket(ctx); err != nil {
		t.Skipf("MinIO not available, skipping integration test: %v", err)
	}

	runID := NewRunID()
	prefix, err := RunPrefix("https://test.example.com/events", time.Now(), runID)
	if err != nil {
		t.Fatalf("RunPrefix() error = %v", err)
	}

	calendar := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"
	start := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	events := []models.CalendarEvent{{
		UID:      "test-uid@calscrape",
		Title:    "Board Meeting",
		Location: "City Hall",
		Start:    start,
		End:      start.Add(models.DefaultDuration),
		Timezone: "UTC",
		Status:   models.StatusConfirmed,
	}}

	t.Run("Calendar", func(t *testing.T) {
		if err := client.PutCalendar(ctx, prefix, calendar); err != nil {
			t.Fatalf("PutCalendar() error = %v", err)
		}
		got, err := client.GetCalendar(ctx, prefix)
		if err != nil {
			t.Fatalf("GetCalendar() error = %v", err)
		}
		if got != calendar {
			t.Errorf("GetCalendar() = %q, want %q", got, calendar)
		}
	})

	t.Run("Events", func(t *testing.T) {
		if err := client.PutEvents(ctx, prefix, events); err != nil {
			t.Fatalf("PutEvents() error = %v", err)
		}
		got, err := client.GetEvents(ctx, prefix)
		if err != nil {
			t.Fatalf("GetEvents() error = %v", err)
		}
		if len(got) != 1 || got[0].Title != "Board Meeting" {
			t.Errorf("GetEvents() = %+v, want one Board Meeting", got)
		}
		if !got[0].Start.Equal(start) {
			t.Errorf("GetEvents()[0].Start = %v, want %v", got[0].Start, start)
		}
	})

	t.Run("PutPage", func(t *testing.T) {
		err := client.PutPage(ctx, prefix, "page.html", "", "<html><body>Board Meeting</body></html>")
		if err != nil {
			t.Fatalf("PutPage() error = %v", err)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		meta := RunMetadata{
			RunID:      runID,
			SourceURL:  "https://test.example.com/events",
			Timestamp:  time.Now().UTC(),
			EventCount: 1,
			HasPage:    true,
		}
		if err := client.PutMetadata(ctx, prefix, meta); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		got, err := client.GetMetadata(ctx, prefix)
		if err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if got.RunID != runID {
			t.Errorf("GetMetadata().RunID = %q, want %q", got.RunID, runID)
		}
		if got.EventCount != 1 {
			t.Errorf("GetMetadata().EventCount = %d, want %d", got.EventCount, 1)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		runs, err := client.ListRuns(ctx, "test.example.com")
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		found := false
		for _, r := range runs {
			if r == prefix {
				found = true
			}
		}
		if !found {
			t.Errorf("ListRuns() = %v, missing %q", runs, prefix)
		}
	})
}
