package models

// StructuredSource names the markup convention an event candidate came from.
type StructuredSource string

const (
	SourceJSONLD    StructuredSource = "json-ld"
	SourceMicrodata StructuredSource = "microdata"
	SourceRDFa      StructuredSource = "rdfa"
)

// DefaultConfidence returns the confidence assigned to candidates from s.
func (s StructuredSource) DefaultConfidence() float64 {
	switch s {
	case SourceJSONLD:
		return 0.9
	case SourceMicrodata:
		return 0.8
	case SourceRDFa:
		return 0.7
	default:
		return 0.5
	}
}

// StructuredEvent is a partial event candidate read from page markup.
// Dates are kept as the raw strings found in the page.
type StructuredEvent struct {
	Title       string           `json:"title"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date,omitempty"`
	Location    string           `json:"location,omitempty"`
	Description string           `json:"description,omitempty"`
	URL         string           `json:"url,omitempty"`
	Organizer   string           `json:"organizer,omitempty"`
	Status      string           `json:"status,omitempty"`
	Source      StructuredSource `json:"source"`
	Confidence  float64          `json:"confidence"`
}

// Upgradable reports whether the candidate has enough data to become a
// CalendarEvent.
func (s StructuredEvent) Upgradable() bool {
	return s.Title != "" && s.StartDate != ""
}
