package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLocation is used when a source does not name a venue.
	DefaultLocation = "TBD"
	// UnknownTimezone marks events whose zone could not be resolved.
	// Their times are floating (wall clock stored in UTC).
	UnknownTimezone = "UNKNOWN"
	// DefaultDuration is applied when an event has no end time.
	DefaultDuration = 2 * time.Hour
	// SourceLLM is the provenance tag of events extracted by the model.
	SourceLLM = "llm"
)

// EventStatus mirrors the iCalendar STATUS values for VEVENT.
type EventStatus string

const (
	StatusConfirmed EventStatus = "CONFIRMED"
	StatusTentative EventStatus = "TENTATIVE"
	StatusCancelled EventStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusTentative, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus maps free-form status text to an EventStatus.
// Unknown values map to StatusConfirmed.
func ParseStatus(s string) EventStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TENTATIVE", "POSTPONED", "RESCHEDULED":
		return StatusTentative
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	default:
		return StatusConfirmed
	}
}

// Organizer identifies who runs an event.
type Organizer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether no organizer field is set.
func (o *Organizer) IsZero() bool {
	return o == nil || (o.Name == "" && o.Email == "" && o.Phone == "")
}

// Attendee is a named participant of an event.
type Attendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// CalendarEvent is the canonical extracted unit.
//
// Start and End carry the event-local wall clock with Location() set to
// the resolved IANA zone. For UnknownTimezone events the wall clock is
// stored in UTC and treated as floating time.
type CalendarEvent struct {
	UID            string      `json:"uid"`
	Title          string      `json:"title"`
	Location       string      `json:"location"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Description    string      `json:"description,omitempty"`
	Timezone       string      `json:"timezone"`
	Organizer      *Organizer  `json:"organizer,omitempty"`
	Attendees      []Attendee  `json:"attendees,omitempty"`
	RecurrenceRule string      `json:"recurrence_rule,omitempty"`
	Categories     []string    `json:"categories,omitempty"`
	Status         EventStatus `json:"status"`
	URL            string      `json:"url,omitempty"`
	Source         string      `json:"source,omitempty"` // llm, json-ld, microdata, rdfa
}

// GenerateEventUID derives a UID from the start time, a hash of the
// title and a random component. The prefix is stable for the same
// event; the random suffix keeps UIDs unpredictable.
func GenerateEventUID(title string, start time.Time) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(title))))
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s@calscrape",
		start.Format("20060102T150405"),
		hex.EncodeToString(hash[:])[:8],
		random)
}
