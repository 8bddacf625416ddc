// Package ics renders calendar events as an iCalendar document and reads
// such documents back.
package ics

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/mfenderov/calscrape/pkg/models"
)

const (
	DefaultProductID = "-//calscrape//calscrape//EN"
	DefaultName      = "Extracted Events"
	DefaultAlarmLead = 15 * time.Minute

	localLayout = "20060102T150405"
)

// Options controls calendar-level properties.
type Options struct {
	Name        string        `mapstructure:"name"`
	Description string        `mapstructure:"description"`
	Timezone    string        `mapstructure:"timezone"`
	Method      string        `mapstructure:"method"`
	Alarm       bool          `mapstructure:"alarm"`
	AlarmLead   time.Duration `mapstructure:"alarm_lead"`
	ProductID   string        `mapstructure:"product_id"`
}

// DefaultOptions publishes without alarms.
func DefaultOptions() Options {
	return Options{
		Name:      DefaultName,
		Method:    string(ical.MethodPublish),
		AlarmLead: DefaultAlarmLead,
		ProductID: DefaultProductID,
	}
}

// Output is a rendered calendar. Skipped holds one error per event that
// could not be rendered.
type Output struct {
	Content string
	Events  int
	Skipped []error
}

// Generate renders events into a VCALENDAR with one VEVENT each. Events
// that cannot be rendered are logged and skipped.
func Generate(events []models.CalendarEvent, opts Options) *Output {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.Method == "" {
		opts.Method = string(ical.MethodPublish)
	}
	if opts.AlarmLead <= 0 {
		opts.AlarmLead = DefaultAlarmLead
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.Method(strings.ToUpper(opts.Method)))
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Description != "" {
		cal.SetXWRCalDesc(opts.Description)
	}
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	out := &Output{}
	renderable := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if err := checkRenderable(ev); err != nil {
			slog.Warn("Skipping event in calendar", "title", ev.Title, "error", err)
			out.Skipped = append(out.Skipped, err)
			continue
		}
		renderable = append(renderable, ev)
	}
	addTimezones(cal, renderable)

	stamp := time.Now().UTC()
	for _, ev := range renderable {
		addEvent(cal, ev, stamp, opts)
		out.Events++
	}
	out.Content = cal.Serialize()
	return out
}

func checkRenderable(ev models.CalendarEvent) error {
	if strings.TrimSpace(ev.Title) == "" {
		return errors.New("event has no title")
	}
	if ev.Start.IsZero() {
		return fmt.Errorf("event %q has no start", ev.Title)
	}
	if ev.Timezone != "" && ev.Timezone != models.UnknownTimezone {
		if _, err := time.LoadLocation(ev.Timezone); err != nil {
			return fmt.Errorf("event %q has invalid timezone %q: %w", ev.Title, ev.Timezone, err)
		}
	}
	return nil
}

func addEvent(cal *ical.Calendar, ev models.CalendarEvent, stamp time.Time, opts Options) {
	uid := ev.UID
	if uid == "" {
		uid = models.GenerateEventUID(ev.Title, ev.Start)
	}
	end := ev.End
	if !end.After(ev.Start) {
		end = ev.Start.Add(models.DefaultDuration)
	}

	vev := cal.AddEvent(uid)
	vev.SetDtStampTime(stamp)
	setTime(vev, ical.ComponentPropertyDtStart, ev.Start, ev.Timezone)
	setTime(vev, ical.ComponentPropertyDtEnd, end, ev.Timezone)
	vev.SetSummary(ev.Title)

	location := ev.Location
	if location == "" {
		location = models.DefaultLocation
	}
	vev.SetLocation(location)
	if desc := description(ev); desc != "" {
		vev.SetDescription(desc)
	}
	if ev.URL != "" {
		vev.SetURL(ev.URL)
	}

	status := ev.Status
	if !status.Valid() {
		status = models.StatusConfirmed
	}
	vev.SetProperty(ical.ComponentPropertyStatus, string(status))

	for _, c := range ev.Categories {
		vev.AddCategory(c)
	}

	if ev.RecurrenceRule != "" {
		if rule, err := NormalizeRRule(ev.RecurrenceRule); err == nil {
			vev.AddProperty(ical.ComponentPropertyRrule, rule)
		} else {
			slog.Debug("Dropping recurrence rule", "title", ev.Title, "rule", ev.RecurrenceRule, "error", err)
		}
	}

	if ev.Organizer != nil && ev.Organizer.Email != "" {
		vev.SetProperty(ical.ComponentPropertyOrganizer, "mailto:"+ev.Organizer.Email, cnParams(ev.Organizer.Name)...)
	}
	for _, a := range ev.Attendees {
		if a.Email == "" {
			continue
		}
		vev.AddProperty(ical.ComponentPropertyAttendee, "mailto:"+a.Email, cnParams(a.Name)...)
	}

	if opts.Alarm {
		addAlarms(vev, ev, opts.AlarmLead)
	}
}

// setTime writes a DATE-TIME property: UTC with a Z suffix, floating for
// UNKNOWN, otherwise the wall clock with a TZID parameter.
func setTime(vev *ical.VEvent, prop ical.ComponentProperty, t time.Time, tz string) {
	switch tz {
	case "UTC", "Etc/UTC":
		vev.SetProperty(prop, t.UTC().Format(localLayout+"Z"))
	case "", models.UnknownTimezone:
		vev.SetProperty(prop, t.Format(localLayout))
	default:
		if loc, err := time.LoadLocation(tz); err == nil {
			t = t.In(loc)
		}
		vev.SetProperty(prop, t.Format(localLayout), &ical.KeyValues{Key: "TZID", Value: []string{tz}})
	}
}

// description appends organizer details that have no ORGANIZER slot.
func description(ev models.CalendarEvent) string {
	desc := strings.TrimSpace(ev.Description)
	o := ev.Organizer
	if o.IsZero() {
		return desc
	}
	var extra []string
	if o.Email == "" && o.Name != "" {
		extra = append(extra, "Organizer: "+o.Name)
	}
	if o.Phone != "" {
		extra = append(extra, "Phone: "+o.Phone)
	}
	if len(extra) == 0 {
		return desc
	}
	if desc != "" {
		desc += "\n\n"
	}
	return desc + strings.Join(extra, "\n")
}

func cnParams(name string) []ical.PropertyParameter {
	if name == "" {
		return nil
	}
	return []ical.PropertyParameter{ical.WithCN(name)}
}

func addAlarms(vev *ical.VEvent, ev models.CalendarEvent, lead time.Duration) {
	trigger := triggerBefore(lead)

	display := vev.AddAlarm()
	display.SetAction(ical.ActionDisplay)
	display.SetTrigger(trigger)
	display.SetProperty(ical.ComponentPropertyDescription, "Reminder: "+ev.Title)

	if ev.Organizer == nil || ev.Organizer.Email == "" {
		return
	}
	email := vev.AddAlarm()
	email.SetAction(ical.ActionEmail)
	email.SetTrigger(trigger)
	email.SetProperty(ical.ComponentPropertySummary, ev.Title)
	email.SetProperty(ical.ComponentPropertyDescription, fmt.Sprintf("%s starts at %s", ev.Title, ev.Start.Format("2006-01-02 15:04")))
	email.AddProperty(ical.ComponentPropertyAttendee, "mailto:"+ev.Organizer.Email, cnParams(ev.Organizer.Name)...)
}

// triggerBefore formats a negative ISO 8601 duration such as -PT15M.
func triggerBefore(d time.Duration) string {
	var b strings.Builder
	b.WriteString("-P")
	if days := d / (24 * time.Hour); days > 0 {
		fmt.Fprintf(&b, "%dD", days)
		d -= days * 24 * time.Hour
	}
	if d <= 0 {
		return b.String()
	}
	b.WriteString("T")
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}
