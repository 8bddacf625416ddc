package markdown

import (
	"testing"
)

func TestIsMarkdownContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"text/markdown", "text/markdown", true},
		{"text/x-markdown", "text/x-markdown", true},
		{"text/markdown with charset", "text/markdown; charset=utf-8", true},
		{"text/html", "text/html", false},
		{"text/plain", "text/plain", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarkdownContentType(tt.contentType); got != tt.want {
				t.Errorf("IsMarkdownContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestIsMarkdownURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"md suffix", "https://example.gov/agenda.md", true},
		{"markdown suffix", "https://example.gov/schedule.markdown", true},
		{"uppercase suffix", "https://example.gov/EVENTS.MD", true},
		{"github raw", "https://raw.githubusercontent.com/city/events/main/SCHEDULE.md", true},
		{"html page", "https://example.gov/events.html", false},
		{"no extension", "https://example.gov/council/calendar", false},
		{"md directory", "https://example.gov/md/events", false},
		{"query string ignored", "https://example.gov/agenda.md?raw=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarkdownURL(tt.url); got != tt.want {
				t.Errorf("IsMarkdownURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}


func TestIsMarkdownContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"heading", "# March Events\n\n**Board Meeting**, Mar 14 7pm", true},
		{"subheading", "## Upcoming\n\nSpring Gala at City Hall.", true},
		{"dash list", "- Mar 14: Board Meeting\n- Mar 21: Library Sale", true},
		{"star list", "* Yoga in the Park, Saturdays 9am", true},
		{"link", "[Register](https://example.org/gala)\n\nTickets at the door.", true},
		{"html document", "<!DOCTYPE html><html><body><h1>Events</h1></body></html>", false},
		{"html fragment", "<div class=\"event\"><p>Gala</p></div>", false},
		{"plain sentence", "Board Meeting, March 14 at 7pm in Room 2.", false},
		{"hashtag is not a heading", "#cityevents this week", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarkdownContent(tt.content); got != tt.want {
				t.Errorf("IsMarkdownContent(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestURLVariants(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"calendar page", "https://example.gov/council/calendar", []string{"https://example.gov/council/calendar.md"}},
		{"trailing slash", "https://example.gov/council/calendar/", []string{"https://example.gov/council/calendar.md"}},
		{"site root", "https://example.gov/", []string{"https://example.gov/index.md"}},
		{"github blob", "https://github.com/city/events/blob/main/SCHEDULE.md", []string{"https://raw.githubusercontent.com/city/events/main/SCHEDULE.md"}},
		{"already markdown", "https://example.gov/events.md", nil},
		{"query string", "https://example.gov/events?month=3", nil},
		{"fragment", "https://example.gov/events#june", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URLVariants(tt.url)
			if len(got) != len(tt.want) {
				t.Fatalf("URLVariants(%q) = %v, want %v", tt.url, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("URLVariants(%q)[%d] = %q, want %q", tt.url, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		content     string
		want        bool
	}{
		{"markdown content type", "https://example.gov/events", "text/markdown", "Board Meeting", true},
		{"markdown path", "https://example.gov/agenda.md", "text/plain", "Board Meeting", true},
		{"plain text heuristics", "https://example.gov/events", "text/plain", "# Agenda\n\n- 7pm Call to order", true},
		{"html served from markdown path", "https://example.gov/agenda.md", "text/html; charset=utf-8", "<html><body>Not found</body></html>", false},
		{"html page", "https://example.gov/events.html", "text/html", "<html><body><h1>Events</h1></body></html>", false},
		{"markdown mislabelled as html", "https://example.gov/events", "text/html", "# Events\n\n- Spring Gala", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.url, tt.contentType, tt.content); got != tt.want {
				t.Errorf("Detect(%q, %q) = %v, want %v", tt.url, tt.contentType, got, tt.want)
			}
		})
	}
}
