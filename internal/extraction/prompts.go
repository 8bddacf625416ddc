package extraction

import (
	"fmt"
	"strings"

	"github.com/mfenderov/calscrape/pkg/models"
)

const (
	contentStart = "<<<CONTENT"
	contentEnd   = "CONTENT>>>"

	// ContinuePrompt is the user turn sent after a truncated reply.
	ContinuePrompt = "continue"
)

// SystemPrompt fixes the JSON output contract.
const SystemPrompt = `You extract calendar events from web page content.

Respond with a single JSON object and nothing else:
{
  "detectedTimezone": "IANA timezone of the page if it can be determined, otherwise null",
  "events": [
    {
      "title": "event title (required)",
      "startDateTime": "YYYY-MM-DDTHH:MM:SS local time (required)",
      "endDateTime": "YYYY-MM-DDTHH:MM:SS local time, or null",
      "location": "venue name and address, or null",
      "description": "short description, or null",
      "organizer": {"name": "...", "email": "...", "phone": "..."},
      "timezone": "IANA timezone of this event, e.g. America/Chicago, or null",
      "recurrenceRule": "RRULE such as FREQ=WEEKLY;BYDAY=TU, or null",
      "categories": ["..."],
      "url": "event page URL, or null",
      "status": "confirmed, tentative or cancelled"
    }
  ],
  "warnings": ["anything ambiguous about the extraction"]
}

Rules:
- Times are the local wall-clock time printed on the page. Never add a "Z" suffix or a UTC offset unless the page itself states the time in UTC.
- Put the zone in the "timezone" field instead. Map abbreviations such as CT, ET or PST to their IANA zone.
- Resolve relative dates ("tomorrow", "next Friday") against the current date given by the user.
- Only include events with a concrete date. Do not invent events.
- If the page has no events, return {"events": []}.
- If your output is cut off and the user says "continue", resume exactly where you stopped without repeating earlier text.`

// BuildUserPrompt embeds the extraction context and the content between
// explicit delimiters.
func BuildUserPrompt(content string, ec models.ExtractionContext) string {
	var b strings.Builder
	b.WriteString("Extract all calendar events from the content below.\n\n")

	current := ec.CurrentDate
	if current.IsZero() {
		b.WriteString("Current date: unknown\n")
	} else {
		fmt.Fprintf(&b, "Current date: %s (%s)\n", current.Format("2006-01-02"), current.Weekday())
	}
	if ec.SourceURL != "" {
		fmt.Fprintf(&b, "Source URL: %s\n", ec.SourceURL)
	}
	if ec.Timezone != "" {
		fmt.Fprintf(&b, "Timezone hint: %s\n", ec.Timezone)
	}
	if ec.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", ec.Language)
	}
	if ec.AdditionalContext != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", ec.AdditionalContext)
	}

	b.WriteString("\n")
	b.WriteString(contentStart)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n")
	b.WriteString(contentEnd)
	return b.String()
}
