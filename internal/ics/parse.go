package ics

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/mfenderov/calscrape/internal/errs"
	"github.com/mfenderov/calscrape/pkg/models"
)

// Parse reads the VEVENTs of an iCalendar document. Events whose start
// cannot be read are logged and skipped.
func Parse(content string) ([]models.CalendarEvent, error) {
	if !strings.Contains(content, "BEGIN:VCALENDAR") {
		return nil, errs.ICS("ics.Parse", errors.New("content is not an iCalendar document"))
	}
	cal, err := ical.ParseCalendar(strings.NewReader(protectListCommas(content)))
	if err != nil {
		return nil, errs.ICS("ics.Parse", err)
	}

	var out []models.CalendarEvent
	for _, vev := range cal.Events() {
		ev, err := parseEvent(vev)
		if err != nil {
			slog.Warn("Skipping unreadable VEVENT", "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseEvent(vev *ical.VEvent) (models.CalendarEvent, error) {
	ev := models.CalendarEvent{
		UID:         propValue(vev, ical.ComponentPropertyUniqueId),
		Title:       propValue(vev, ical.ComponentPropertySummary),
		Location:    propValue(vev, ical.ComponentPropertyLocation),
		Description: propValue(vev, ical.ComponentPropertyDescription),
		URL:         propValue(vev, ical.ComponentPropertyUrl),
		Status:      models.ParseStatus(propValue(vev, ical.ComponentPropertyStatus)),
	}

	start, tz, err := parseTime(vev.GetProperty(ical.ComponentPropertyDtStart))
	if err != nil {
		return ev, fmt.Errorf("event %q: %w", ev.Title, err)
	}
	ev.Start, ev.Timezone = start, tz
	if end, _, err := parseTime(vev.GetProperty(ical.ComponentPropertyDtEnd)); err == nil {
		ev.End = end
	} else {
		ev.End = start.Add(models.DefaultDuration)
	}

	if rule := propValue(vev, ical.ComponentPropertyRrule); rule != "" {
		ev.RecurrenceRule = rule
	}
	for _, p := range vev.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(strings.ReplaceAll(c, listComma, ",")); c != "" {
				ev.Categories = append(ev.Categories, c)
			}
		}
	}

	if p := vev.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		ev.Organizer = &models.Organizer{Name: param(p, "CN"), Email: mailto(p.Value)}
	}
	for _, p := range vev.GetProperties(ical.ComponentPropertyAttendee) {
		ev.Attendees = append(ev.Attendees, models.Attendee{Name: param(p, "CN"), Email: mailto(p.Value)})
	}
	return ev, nil
}

// parseTime reads a DATE or DATE-TIME property. UTC values get the UTC
// zone, TZID values their zone and floating values UNKNOWN.
func parseTime(p *ical.IANAProperty) (time.Time, string, error) {
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return time.Time{}, "", errors.New("missing date-time")
	}
	v := strings.TrimSpace(p.Value)

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(localLayout+"Z", v)
		return t, "UTC", err
	}

	loc, tz := time.UTC, models.UnknownTimezone
	if id := param(p, "TZID"); id != "" {
		l, err := time.LoadLocation(id)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("unknown TZID %q: %w", id, err)
		}
		loc, tz = l, id
	}
	layout := localLayout
	if !strings.Contains(v, "T") {
		layout = "20060102"
	}
	t, err := time.ParseInLocation(layout, v, loc)
	return t, tz, err
}

func propValue(vev *ical.VEvent, prop ical.ComponentProperty) string {
	if p := vev.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func param(p *ical.IANAProperty, name string) string {
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

func mailto(v string) string {
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}

// listComma stands in for an escaped comma inside a CATEGORIES value while
// the document is parsed, so it is not read as a list separator.
const listComma = "\uE000"

var unfolder = strings.NewReplacer("\r\n ", "", "\r\n\t", "", "\n ", "", "\n\t", "")

// protectListCommas unfolds content lines and replaces the escaped commas
// of CATEGORIES lines with listComma.
func protectListCommas(content string) string {
	lines := strings.Split(unfolder.Replace(content), "\n")
	for i, line := range lines {
		upper := strings.ToUpper(line)
		if !strings.HasPrefix(upper, "CATEGORIES:") && !strings.HasPrefix(upper, "CATEGORIES;") {
			continue
		}
		var b strings.Builder
		for j := 0; j < len(line); j++ {
			if line[j] != '\\' || j+1 == len(line) {
				b.WriteByte(line[j])
				continue
			}
			if line[j+1] == ',' {
				b.WriteString(listComma)
			} else {
				b.WriteByte(line[j])
				b.WriteByte(line[j+1])
			}
			j++
		}
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}
