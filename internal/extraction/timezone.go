package extraction

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultTimezone is used when nothing else resolves a zone.
const DefaultTimezone = "America/New_York"

// DefaultTimezoneNames maps abbreviations, zone names and cities to IANA
// zones. Abbreviations are ambiguous (CST is also China Standard Time);
// callers with better local knowledge should supply their own table.
var DefaultTimezoneNames = map[string]string{
	"ET": "America/New_York", "EST": "America/New_York", "EDT": "America/New_York",
	"CT": "America/Chicago", "CST": "America/Chicago", "CDT": "America/Chicago",
	"MT": "America/Denver", "MST": "America/Denver", "MDT": "America/Denver",
	"PT": "America/Los_Angeles", "PST": "America/Los_Angeles", "PDT": "America/Los_Angeles",
	"AKST": "America/Anchorage", "AKDT": "America/Anchorage",
	"HST": "Pacific/Honolulu",
	"GMT": "Europe/London", "BST": "Europe/London",
	"CET": "Europe/Berlin", "CEST": "Europe/Berlin",
	"EET": "Europe/Athens", "EEST": "Europe/Athens",
	"IST": "Asia/Kolkata", "JST": "Asia/Tokyo",
	"AEST": "Australia/Sydney", "AEDT": "Australia/Sydney",
	"UTC": "UTC",

	"eastern time": "America/New_York", "central time": "America/Chicago",
	"mountain time": "America/Denver", "pacific time": "America/Los_Angeles",

	"new york": "America/New_York", "boston": "America/New_York", "atlanta": "America/New_York",
	"miami": "America/New_York", "washington, dc": "America/New_York", "philadelphia": "America/New_York",
	"detroit": "America/Detroit", "toronto": "America/Toronto",
	"chicago": "America/Chicago", "houston": "America/Chicago", "dallas": "America/Chicago",
	"austin": "America/Chicago", "minneapolis": "America/Chicago", "new orleans": "America/Chicago",
	"denver": "America/Denver", "phoenix": "America/Phoenix", "salt lake city": "America/Denver",
	"los angeles": "America/Los_Angeles", "san francisco": "America/Los_Angeles",
	"seattle": "America/Los_Angeles", "portland": "America/Los_Angeles", "vancouver": "America/Vancouver",
	"london": "Europe/London", "dublin": "Europe/Dublin", "paris": "Europe/Paris",
	"berlin": "Europe/Berlin", "amsterdam": "Europe/Amsterdam", "madrid": "Europe/Madrid",
	"rome": "Europe/Rome", "tokyo": "Asia/Tokyo", "singapore": "Asia/Singapore",
	"sydney": "Australia/Sydney", "melbourne": "Australia/Melbourne",
}

type tzEntry struct {
	zone    string
	pattern *regexp.Regexp
	// explicit entries name a zone outright; the rest are cities
	explicit bool
}

// TimezoneTable infers IANA zones from free text.
type TimezoneTable struct {
	entries []tzEntry
	exact   map[string]string
}

// NewTimezoneTable compiles names into a table. Upper-case names of up to
// five letters are abbreviations: they match case-sensitively and only
// right after a time of day ("6PM CT", "18:00 CET"). Other names match
// case-insensitively on word boundaries.
func NewTimezoneTable(names map[string]string) *TimezoneTable {
	t := &TimezoneTable{exact: make(map[string]string, len(names))}

	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	// Longer names first so "CEST" wins over "CET" on the same position.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		zone := names[k]
		t.exact[strings.ToLower(k)] = zone
		abbrev := isAbbreviation(k)
		e := tzEntry{zone: zone, explicit: abbrev || strings.HasSuffix(k, " time")}
		if abbrev {
			e.pattern = regexp.MustCompile(`\d(?i:\s*[ap]\.?m\.?)?\s*\(?` + regexp.QuoteMeta(k) + `\b`)
		} else {
			e.pattern = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`)
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// DefaultTimezoneTable is NewTimezoneTable(DefaultTimezoneNames).
func DefaultTimezoneTable() *TimezoneTable {
	return NewTimezoneTable(DefaultTimezoneNames)
}

func isAbbreviation(s string) bool {
	if len(s) < 2 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Lookup resolves an exact name, case-insensitively.
func (t *TimezoneTable) Lookup(name string) (string, bool) {
	zone, ok := t.exact[strings.ToLower(strings.TrimSpace(name))]
	return zone, ok
}

// Infer finds the zone mentioned in text. Time-anchored abbreviations and
// zone names take precedence over city names; within a group the earliest
// mention wins.
func (t *TimezoneTable) Infer(text string) (string, bool) {
	if zone, ok := t.earliest(text, true); ok {
		return zone, true
	}
	return t.earliest(text, false)
}

func (t *TimezoneTable) earliest(text string, explicit bool) (string, bool) {
	best, zone := -1, ""
	for _, e := range t.entries {
		if e.explicit != explicit {
			continue
		}
		loc := e.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best < 0 || loc[0] < best {
			best, zone = loc[0], e.zone
		}
	}
	return zone, best >= 0
}

// resolveZone turns a zone name into a location. Names the table knows
// are mapped first, so "EST" becomes America/New_York rather than the
// fixed-offset zone of the same name.
func resolveZone(name string, table *TimezoneTable) (*time.Location, string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" || name == "UNKNOWN" {
		return nil, "", false
	}
	if table != nil {
		if zone, ok := table.Lookup(name); ok {
			name = zone
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, "", false
	}
	return loc, name, true
}
