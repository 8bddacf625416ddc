package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfenderov/calscrape/pkg/models"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidEvent is an event excluded from output together with its errors.
type InvalidEvent struct {
	Event  models.CalendarEvent `json:"event"`
	Errors []FieldError         `json:"errors"`
}

// Warning renders the invalid event as a single warning line.
func (iv InvalidEvent) Warning() string {
	parts := make([]string, len(iv.Errors))
	for i, fe := range iv.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	title := iv.Event.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("dropped invalid event %q: %s", title, strings.Join(parts, "; "))
}

// Validate splits events into those satisfying the CalendarEvent
// invariants and those that do not.
func Validate(events []models.CalendarEvent) (valid []models.CalendarEvent, invalid []InvalidEvent) {
	for _, ev := range events {
		if errs := check(ev); len(errs) > 0 {
			invalid = append(invalid, InvalidEvent{Event: ev, Errors: errs})
			continue
		}
		valid = append(valid, ev)
	}
	return valid, invalid
}

func check(ev models.CalendarEvent) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(ev.Title) == "" {
		errs = append(errs, FieldError{"title", "must not be empty"})
	}
	if ev.Start.IsZero() {
		errs = append(errs, FieldError{"start", "missing or unparseable"})
	} else if !ev.End.After(ev.Start) {
		errs = append(errs, FieldError{"end", "must be after start"})
	}
	if !ValidTimezone(ev.Timezone) {
		errs = append(errs, FieldError{"timezone", fmt.Sprintf("%q is neither an IANA zone nor %s", ev.Timezone, models.UnknownTimezone)})
	}
	if ev.Status != "" && !ev.Status.Valid() {
		errs = append(errs, FieldError{"status", fmt.Sprintf("unknown status %q", ev.Status)})
	}
	return errs
}

// ValidTimezone reports whether tz is a loadable IANA zone or the
// UNKNOWN sentinel.
func ValidTimezone(tz string) bool {
	if tz == models.UnknownTimezone {
		return true
	}
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
