package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/mfenderov/calscrape/pkg/models"
)

// maxObservances caps the STANDARD/DAYLIGHT blocks emitted per zone.
const maxObservances = 64

var firstOnset = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// usesTZID reports whether times in zone tz are written with a TZID
// parameter, and so need a VTIMEZONE.
func usesTZID(tz string) bool {
	switch tz {
	case "", models.UnknownTimezone, "UTC", "Etc/UTC":
		return false
	}
	return true
}

type zoneSpan struct {
	loc      *time.Location
	from, to time.Time
}

// addTimezones adds one VTIMEZONE per zone referenced by events, with
// observances covering the time span of the events in that zone.
// Recurring events extend the span by a year.
func addTimezones(cal *ical.Calendar, events []models.CalendarEvent) {
	var order []string
	spans := make(map[string]*zoneSpan)
	for _, ev := range events {
		if !usesTZID(ev.Timezone) {
			continue
		}
		loc, err := time.LoadLocation(ev.Timezone)
		if err != nil {
			continue
		}
		end := ev.End
		if !end.After(ev.Start) {
			end = ev.Start.Add(models.DefaultDuration)
		}
		if ev.RecurrenceRule != "" {
			end = end.AddDate(1, 0, 0)
		}

		s, ok := spans[ev.Timezone]
		if !ok {
			spans[ev.Timezone] = &zoneSpan{loc: loc, from: ev.Start, to: end}
			order = append(order, ev.Timezone)
			continue
		}
		if ev.Start.Before(s.from) {
			s.from = ev.Start
		}
		if end.After(s.to) {
			s.to = end
		}
	}

	for _, id := range order {
		s := spans[id]
		cal.AddVTimezone(buildTimezone(id, s.loc, s.from, s.to))
	}
}

// buildTimezone walks the offset periods of loc from the one containing
// from up to the last one starting before to.
func buildTimezone(id string, loc *time.Location, from, to time.Time) *ical.VTimezone {
	tz := ical.NewTimezone(id)
	t := from.In(loc)
	start, end := t.ZoneBounds()
	addObservance(tz, t, start)
	for i := 1; i < maxObservances && !end.IsZero() && end.Before(to); i++ {
		t = end
		start, end = t.ZoneBounds()
		addObservance(tz, t, start)
	}
	return tz
}

// addObservance describes the offset in effect at t, which took effect at
// start. A zero start means the offset has always applied.
func addObservance(tz *ical.VTimezone, t, start time.Time) {
	name, offset := t.Zone()
	prev := offset
	onset := firstOnset
	if !start.IsZero() {
		_, prev = start.Add(-time.Second).Zone()
		onset = start.In(time.FixedZone("", prev))
	}

	var obs *ical.ComponentBase
	if t.IsDST() {
		d := &ical.Daylight{}
		tz.Components = append(tz.Components, d)
		obs = &d.ComponentBase
	} else {
		obs = &tz.AddStandard().ComponentBase
	}
	obs.SetProperty(ical.ComponentPropertyDtStart, onset.Format(localLayout))
	obs.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), formatOffset(prev))
	obs.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), formatOffset(offset))
	obs.SetProperty(ical.ComponentProperty(ical.PropertyTzname), name)
}

// formatOffset renders seconds east of UTC as +HHMM, or +HHMMSS when the
// offset has a seconds part.
func formatOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign, sec = '-', -sec
	}
	h, m, s := sec/3600, sec/60%60, sec%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}
