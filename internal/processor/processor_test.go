package processor

import (
	"strings"
	"testing"

	"github.com/mfenderov/calscrape/pkg/models"
)

func TestProcessor_ConvertHTMLToMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		contains []string // Expected substrings in output
	}{
		{
			name: "converts headings",
			html: `<html><body><h1>Title</h1><h2>Subtitle</h2></body></html>`,
			contains: []string{
				"# Title",
				"## Subtitle",
			},
		},
		{
			name: "converts paragraphs",
			html: `<html><body><p>Hello world.</p><p>Second paragraph.</p></body></html>`,
			contains: []string{
				"Hello world.",
				"Second paragraph.",
			},
		},
		{
			name: "converts links",
			html: `<html><body><p>Check <a href="https://example.com">this link</a>.</p></body></html>`,
			contains: []string{
				"[this link](https://example.com)",
			},
		},
		{
			name: "converts code blocks",
			html: `<html><body><pre><code>func main() {}</code></pre></body></html>`,
			contains: []string{
				"func main() {}",
			},
		},
		{
			name: "converts inline code",
			html: `<html><body><p>Use <code>go run</code> to execute.</p></body></html>`,
			contains: []string{
				"`go run`",
			},
		},
		{
			name: "converts lists",
			html: `<html><body><ul><li>Item 1</li><li>Item 2</li></ul></body></html>`,
			contains: []string{
				"Item 1",
				"Item 2",
			},
		},
	}

	p := New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Convert(tt.html)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("expected output to contain %q, got:\n%s", expected, result)
				}
			}
		})
	}
}

func TestProcessor_ConvertHTMLToMarkdown_ExtractsTitle(t *testing.T) {
	html := `<html><head><title>Page Title</title></head><body><p>Content</p></body></html>`

	p := New()
	_, err := p.Convert(html)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	title := p.ExtractTitle(html)
	if title != "Page Title" {
		t.Errorf("ExtractTitle() = %q, want %q", title, "Page Title")
	}
}

func TestProcessor_ConvertHTMLToMarkdown_EmptyInput(t *testing.T) {
	p := New()

	result, err := p.Convert("")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if result != "" {
		t.Errorf("Convert(\"\") = %q, want empty", result)
	}
}

func TestProcessor_ExtractTitle_NoTitle(t *testing.T) {
	p := New()
	html := `<html><body><p>No title here</p></body></html>`

	title := p.ExtractTitle(html)
	if title != "" {
		t.Errorf("ExtractTitle() should return empty for no title, got %q", title)
	}
}

const eventsPage = `<html lang="en">
<head>
	<title>City Events</title>
	<meta name="description" content="Upcoming events in the city">
</head>
<body>
	<nav class="main-nav"><ul><li>Home</li><li>About us and our long history</li></ul></nav>
	<div class="cookie-banner">We use cookies to improve your experience on this site.</div>
	<main>
		<h1>Upcoming Events</h1>
		<div class="event">
			<h2>Spring Gala</h2>
			<p>Join us on March 3, 2025 at 6:00 PM at the Grand Hotel, 123 Main Street. Register now to reserve your seat.</p>
		</div>
		<!-- editor note: confirm venue -->
		<p>Our organization has been serving the community for many years with dedication.</p>
	</main>
	<footer>Copyright 2025 City Events Inc.</footer>
</body>
</html>`

func TestProcessor_Process_RanksEventChunkFirst(t *testing.T) {
	res := New().Process(eventsPage)

	if len(res.Chunks) == 0 {
		t.Fatal("expected chunks")
	}
	top := res.Chunks[0]
	if !strings.Contains(top.Content, "Grand Hotel") {
		t.Errorf("top chunk = %q, want the gala paragraph", top.Content)
	}
	if top.Type != models.ChunkTypeEvent {
		t.Errorf("top chunk type = %q, want %q", top.Type, models.ChunkTypeEvent)
	}
	if !top.Context.InMainContent {
		t.Error("top chunk should come from main content")
	}
	if top.TokenEstimate != models.EstimateTokens(top.Content) {
		t.Errorf("TokenEstimate = %d, want %d", top.TokenEstimate, models.EstimateTokens(top.Content))
	}
	for i := 1; i < len(res.Chunks); i++ {
		if res.Chunks[i].CombinedScore() > res.Chunks[i-1].CombinedScore() {
			t.Errorf("chunks not sorted by combined score at %d", i)
		}
	}
}

func TestProcessor_Process_StripsBoilerplate(t *testing.T) {
	res := New().Process(eventsPage)

	for _, c := range res.Chunks {
		for _, unwanted := range []string{"cookies", "About us", "Copyright"} {
			if strings.Contains(c.Content, unwanted) {
				t.Errorf("chunk %q should not contain %q", c.Content, unwanted)
			}
		}
	}
	for _, unwanted := range []string{"cookies", "About us", "Copyright", "editor note"} {
		if strings.Contains(res.Markdown, unwanted) {
			t.Errorf("markdown should not contain %q:\n%s", unwanted, res.Markdown)
		}
	}
	if !strings.Contains(res.Markdown, "Spring Gala") {
		t.Errorf("markdown should keep the event heading:\n%s", res.Markdown)
	}
}

func TestProcessor_Process_Metadata(t *testing.T) {
	res := New().Process(eventsPage)

	want := Metadata{Title: "City Events", Description: "Upcoming events in the city", Language: "en"}
	if res.Metadata != want {
		t.Errorf("Metadata = %+v, want %+v", res.Metadata, want)
	}
}

func TestProcessor_Process_FallsBackToBody(t *testing.T) {
	page := `<html><body>
		<main><p>Short.</p></main>
		<div><p>Conference on April 5, 2025 at the Convention Center in Austin, TX. Tickets available now.</p></div>
	</body></html>`

	res := New().Process(page)

	var found bool
	for _, c := range res.Chunks {
		if strings.Contains(c.Content, "Convention Center") {
			found = true
			if c.Context.InMainContent {
				t.Error("body fallback chunks should not be flagged as main content")
			}
		}
	}
	if !found {
		t.Errorf("expected the conference paragraph in chunks: %+v", res.Chunks)
	}
}

func TestProcessor_Process_DedupesIdenticalBlocks(t *testing.T) {
	para := "<p>Workshop on May 5, 2025 at the Public Library. Sign up today.</p>"
	page := "<html><body><main>" + para + para + "</main></body></html>"

	res := New().Process(page)

	count := 0
	for _, c := range res.Chunks {
		if strings.Contains(c.Content, "Workshop on May 5") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("identical blocks produced %d chunks, want 1", count)
	}
}

func TestProcessor_Process_BoundsChunkCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for _, day := range []string{"1", "2", "3", "4", "5"} {
		b.WriteString("<p>Concert on June " + day + ", 2025 at 7 PM at the Riverside Park. Get tickets now.</p>")
	}
	b.WriteString("</main></body></html>")

	res := NewWithOptions(Options{MaxChunks: 2}).Process(b.String())

	if len(res.Chunks) != 2 {
		t.Errorf("len(Chunks) = %d, want 2", len(res.Chunks))
	}
}

func TestProcessor_Process_FallbackWhenNothingClearsThreshold(t *testing.T) {
	page := `<html><body><main>
		<p>The quick brown fox jumps over the lazy dog near the river bank.</p>
		<p>A gentle breeze moved through the old oak trees all afternoon long.</p>
		<p>Nobody could remember when the little wooden bridge was first built.</p>
	</main></body></html>`

	res := New().Process(page)

	if len(res.Chunks) == 0 {
		t.Fatal("expected best-available chunks instead of none")
	}
	for _, c := range res.Chunks {
		if c.CombinedScore() >= 0.2 {
			t.Errorf("chunk %q unexpectedly clears the threshold", c.Content)
		}
	}
}

func TestProcessor_Process_MalformedMarkup(t *testing.T) {
	inputs := []string{
		"",
		"<div><p>Unclosed <b>tags <table><tr><td>March 3, 2025 meeting at City Hall",
		"<<<>>>",
		"plain text without tags",
	}
	p := New()
	for _, in := range inputs {
		if res := p.Process(in); res == nil {
			t.Errorf("Process(%q) returned nil", in)
		}
	}
}

func TestProcessor_Process_JSONLD(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
	{
		"@context": "https://schema.org",
		"@type": "Event",
		"name": "Board Meeting",
		"startDate": "2025-03-01T18:00:00",
		"location": {
			"@type": "Place",
			"name": "City Hall",
			"address": {"@type": "PostalAddress", "streetAddress": "1 Civic Plaza", "addressLocality": "Springfield", "addressRegion": "IL"}
		},
		"organizer": {"@type": "Organization", "name": "Springfield Council"},
		"eventStatus": "https://schema.org/EventPostponed"
	}
	</script></head><body></body></html>`

	res := New().Process(page)

	if len(res.Structured) != 1 {
		t.Fatalf("len(Structured) = %d, want 1", len(res.Structured))
	}
	ev := res.Structured[0]
	want := models.StructuredEvent{
		Title:      "Board Meeting",
		StartDate:  "2025-03-01T18:00:00",
		Location:   "City Hall, 1 Civic Plaza, Springfield, IL",
		Organizer:  "Springfield Council",
		Status:     "postponed",
		Source:     models.SourceJSONLD,
		Confidence: 0.9,
	}
	if ev != want {
		t.Errorf("Structured[0] = %+v\nwant %+v", ev, want)
	}
	if strings.Contains(res.Markdown, "schema.org") {
		t.Error("scripts should be stripped from markdown")
	}
}

func TestProcessor_Process_JSONLDGraphAndMalformed(t *testing.T) {
	page := `<html><head>
	<script type="application/ld+json">{not valid json</script>
	<script type="application/ld+json">
	{"@context": "https://schema.org", "@graph": [
		{"@type": "WebPage", "name": "Events"},
		{"@type": ["Event", "Thing"], "name": "Open House", "startDate": "2025-04-01T10:00"},
		{"@type": "MusicEvent", "name": "Jazz Night", "startDate": "2025-04-02T20:00"}
	]}
	</script>
	<script type="application/ld+json">[{"@type": "Event", "name": "Book Fair", "startDate": "2025-04-03"}]</script>
	</head><body></body></html>`

	res := New().Process(page)

	titles := make(map[string]bool)
	for _, ev := range res.Structured {
		titles[ev.Title] = true
	}
	for _, want := range []string{"Open House", "Jazz Night", "Book Fair"} {
		if !titles[want] {
			t.Errorf("missing structured event %q in %+v", want, res.Structured)
		}
	}
	if titles["Events"] {
		t.Error("non-event graph nodes should be ignored")
	}
}

func TestProcessor_Process_Microdata(t *testing.T) {
	page := `<html><body>
	<div itemscope itemtype="https://schema.org/Event">
		<span itemprop="name">Jazz Night</span>
		<time itemprop="startDate" datetime="2025-05-10T20:00">May 10, 8pm</time>
		<div itemprop="location" itemscope itemtype="https://schema.org/Place">
			<span itemprop="name">Blue Note</span>
			<span itemprop="address">131 W 3rd St</span>
		</div>
		<a itemprop="url" href="https://example.com/jazz">Details</a>
	</div>
	</body></html>`

	res := New().Process(page)

	if len(res.Structured) != 1 {
		t.Fatalf("len(Structured) = %d, want 1: %+v", len(res.Structured), res.Structured)
	}
	ev := res.Structured[0]
	if ev.Title != "Jazz Night" {
		t.Errorf("Title = %q, want Jazz Night", ev.Title)
	}
	if ev.StartDate != "2025-05-10T20:00" {
		t.Errorf("StartDate = %q, want 2025-05-10T20:00", ev.StartDate)
	}
	if ev.Location != "Blue Note, 131 W 3rd St" {
		t.Errorf("Location = %q, want %q", ev.Location, "Blue Note, 131 W 3rd St")
	}
	if ev.URL != "https://example.com/jazz" {
		t.Errorf("URL = %q", ev.URL)
	}
	if ev.Source != models.SourceMicrodata || ev.Confidence != 0.8 {
		t.Errorf("Source = %q, Confidence = %v", ev.Source, ev.Confidence)
	}
}

func TestProcessor_Process_RDFa(t *testing.T) {
	page := `<html><body>
	<div vocab="https://schema.org/" typeof="Event">
		<span property="name">Poetry Reading</span>
		<meta property="startDate" content="2025-06-01T19:00">
		<span property="schema:location">Main Library</span>
	</div>
	</body></html>`

	res := New().Process(page)

	if len(res.Structured) != 1 {
		t.Fatalf("len(Structured) = %d, want 1", len(res.Structured))
	}
	ev := res.Structured[0]
	if ev.Title != "Poetry Reading" || ev.StartDate != "2025-06-01T19:00" || ev.Location != "Main Library" {
		t.Errorf("Structured[0] = %+v", ev)
	}
	if ev.Source != models.SourceRDFa || ev.Confidence != 0.7 {
		t.Errorf("Source = %q, Confidence = %v", ev.Source, ev.Confidence)
	}
}

func TestProcessor_ProcessMarkdown(t *testing.T) {
	md := "# Community Calendar\n\n## Spring Gala\n\nJoin us March 3, 2025 at 6PM at the Grand Hotel. RSVP required.\n\nSome unrelated prose about the history of the neighborhood.\n"

	res := New().ProcessMarkdown(md)

	if res.Metadata.Title != "Community Calendar" {
		t.Errorf("Title = %q, want Community Calendar", res.Metadata.Title)
	}
	if len(res.Chunks) == 0 {
		t.Fatal("expected chunks")
	}
	top := res.Chunks[0]
	if !strings.HasPrefix(top.Content, "Spring Gala\nJoin us") {
		t.Errorf("top chunk = %q, want heading-prefixed gala block", top.Content)
	}
	if top.Type != models.ChunkTypeEvent {
		t.Errorf("top chunk type = %q, want event", top.Type)
	}
	if len(res.Structured) != 0 {
		t.Error("markdown has no structured data")
	}
}
