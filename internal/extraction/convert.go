package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfenderov/calscrape/pkg/models"
	"github.com/samber/lo"
)

// offsetLayouts carry their own zone; the instant is converted into the
// event zone.
var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

// localLayouts are read as wall-clock time in the event zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// zoneResolver picks the zone of each record. The first hint that names a
// loadable zone wins; a hint that is present but invalid yields UNKNOWN.
type zoneResolver struct {
	table    *TimezoneTable
	hint     string
	detected string
	inferred string
	fallback string
}

func newZoneResolver(table *TimezoneTable, ec models.ExtractionContext, detected, content, fallback string) zoneResolver {
	r := zoneResolver{table: table, hint: ec.Timezone, detected: detected, fallback: fallback}
	if table != nil {
		r.inferred, _ = table.Infer(content)
	}
	return r
}

func (r zoneResolver) resolve(recordZone string) (*time.Location, string) {
	for _, name := range []string{recordZone, r.hint, r.detected, r.inferred, r.fallback} {
		if strings.TrimSpace(name) == "" || strings.EqualFold(name, "null") {
			continue
		}
		if loc, zone, ok := resolveZone(name, r.table); ok {
			return loc, zone
		}
		return time.UTC, models.UnknownTimezone
	}
	return time.UTC, models.UnknownTimezone
}

// parseDateTime reads s in loc. Strings with a Z or numeric offset are
// converted into loc; others are the wall clock in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}

// toCalendarEvent converts one raw record. It fails only when the record
// has no title or no readable start. An end that does not follow the start
// is kept as read, so validation reports the event.
func toCalendarEvent(r RawEvent, zones zoneResolver) (models.CalendarEvent, error) {
	if r.Title == "" {
		return models.CalendarEvent{}, fmt.Errorf("event without title skipped")
	}
	if r.StartDateTime == "" {
		return models.CalendarEvent{}, fmt.Errorf("event %q without start skipped", r.Title)
	}

	loc, zone := zones.resolve(r.Timezone)
	start, err := parseDateTime(r.StartDateTime, loc)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("event %q skipped: %w", r.Title, err)
	}

	end := start.Add(models.DefaultDuration)
	if r.EndDateTime != "" {
		if t, err := parseDateTime(r.EndDateTime, loc); err == nil {
			end = t
		}
	}

	location := r.Location
	if location == "" {
		location = models.DefaultLocation
	}

	return models.CalendarEvent{
		UID:            models.GenerateEventUID(r.Title, start),
		Title:          r.Title,
		Location:       location,
		Start:          start,
		End:            end,
		Description:    r.Description,
		Timezone:       zone,
		Organizer:      r.Organizer,
		Attendees:      r.Attendees,
		RecurrenceRule: strings.TrimPrefix(strings.TrimSpace(r.RecurrenceRule), "RRULE:"),
		Categories:     lo.Uniq(r.Categories),
		Status:         models.ParseStatus(r.Status),
		URL:            r.URL,
		Source:         models.SourceLLM,
	}, nil
}

// FromStructured upgrades a markup candidate. Timezone resolution follows
// the same order as model output, with content used for inference.
func FromStructured(se models.StructuredEvent, ec models.ExtractionContext, content string, table *TimezoneTable) (models.CalendarEvent, error) {
	if !se.Upgradable() {
		return models.CalendarEvent{}, fmt.Errorf("structured event %q lacks title or start", se.Title)
	}
	var organizer *models.Organizer
	if se.Organizer != "" {
		organizer = &models.Organizer{Name: se.Organizer}
	}
	zones := newZoneResolver(table, ec, "", content, DefaultTimezone)
	ev, err := toCalendarEvent(RawEvent{
		Title:         se.Title,
		StartDateTime: se.StartDate,
		EndDateTime:   se.EndDate,
		Location:      se.Location,
		Description:   se.Description,
		Organizer:     organizer,
		URL:           se.URL,
		Status:        se.Status,
	}, zones)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	ev.Source = string(se.Source)
	return ev, nil
}
