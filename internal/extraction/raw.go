package extraction

import (
	"fmt"
	"strings"

	"github.com/mfenderov/calscrape/pkg/models"
)

// RawEvent is one event record as the model produced it.
type RawEvent struct {
	Title          string
	StartDateTime  string
	EndDateTime    string
	Location       string
	Description    string
	Organizer      *models.Organizer
	Attendees      []models.Attendee
	Timezone       string
	RecurrenceRule string
	Categories     []string
	URL            string
	Status         string
}

// decodeRaw reads a record, tolerating the loose typing models produce:
// organizers as strings or objects, categories as a string or list.
func decodeRaw(m map[string]any) RawEvent {
	r := RawEvent{
		Title:          firstString(m, "title", "name", "summary"),
		StartDateTime:  firstString(m, "startDateTime", "start", "startDate"),
		EndDateTime:    firstString(m, "endDateTime", "end", "endDate"),
		Location:       locationString(m["location"]),
		Description:    firstString(m, "description"),
		Timezone:       firstString(m, "timezone", "timeZone"),
		RecurrenceRule: firstString(m, "recurrenceRule", "rrule"),
		Categories:     stringList(m["categories"]),
		URL:            firstString(m, "url"),
		Status:         firstString(m, "status"),
	}
	r.Organizer = decodeOrganizer(m["organizer"])
	r.Attendees = decodeAttendees(m["attendees"])
	return r
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" && !strings.EqualFold(s, "null") {
				return s
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func locationString(v any) string {
	switch t := v.(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(t), "null") {
			return ""
		}
		return strings.TrimSpace(t)
	case map[string]any:
		parts := []string{firstString(t, "name"), firstString(t, "address")}
		var kept []string
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		return strings.Join(kept, ", ")
	}
	return ""
}

func decodeOrganizer(v any) *models.Organizer {
	var o models.Organizer
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.Contains(s, "@") && !strings.Contains(s, " ") {
			o.Email = s
		} else {
			o.Name = s
		}
	case map[string]any:
		o = models.Organizer{
			Name:  firstString(t, "name"),
			Email: firstString(t, "email"),
			Phone: firstString(t, "phone"),
		}
	}
	if o.IsZero() {
		return nil
	}
	return &o
}

func decodeAttendees(v any) []models.Attendee {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []models.Attendee
	for _, item := range arr {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, models.Attendee{Name: s})
			}
		case map[string]any:
			a := models.Attendee{Name: firstString(t, "name"), Email: firstString(t, "email")}
			if a.Name != "" || a.Email != "" {
				out = append(out, a)
			}
		}
	}
	return out
}
