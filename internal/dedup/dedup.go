// Package dedup merges duplicate calendar events and validates the
// survivors.
package dedup

import (
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/mfenderov/calscrape/pkg/models"
	"github.com/samber/lo"
)

const (
	// FuzzyStartWindow is how far apart two identically titled events may
	// start and still be considered the same.
	FuzzyStartWindow = 60 * time.Second
	// FuzzySimilarity is the title similarity above which two events on
	// the same date are considered the same.
	FuzzySimilarity = 0.8
)

type keyFunc func(models.CalendarEvent) (string, bool)

// Deduplicate merges events sharing a primary key (title, start,
// location). Events whose location normalizes to nothing are merged by the
// fallback key (title, start) among themselves. When no event has a
// keyable location the fallback key is used for the whole set.
func Deduplicate(events []models.CalendarEvent) []models.CalendarEvent {
	if len(events) == 0 {
		return nil
	}
	if !lo.ContainsBy(events, hasPrimaryKey) {
		return dedupeBy(events, FallbackKey)
	}
	return dedupeBy(events, Key)
}

// DeduplicateFuzzy applies Deduplicate and then merges near-duplicates:
// identical titles starting within FuzzyStartWindow, or titles more than
// FuzzySimilarity alike on the same calendar date.
func DeduplicateFuzzy(events []models.CalendarEvent) []models.CalendarEvent {
	var out []models.CalendarEvent
	for _, ev := range Deduplicate(events) {
		merged := false
		for i := range out {
			if !IsFuzzyDuplicate(out[i], ev) {
				continue
			}
			if MoreComplete(ev, out[i]) {
				out[i] = ev
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, ev)
		}
	}
	return out
}

func dedupeBy(events []models.CalendarEvent, key keyFunc) []models.CalendarEvent {
	index := make(map[string]int, len(events))
	out := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		k, ok := key(ev)
		if !ok {
			continue
		}
		if i, exists := index[k]; exists {
			if MoreComplete(ev, out[i]) {
				out[i] = ev
			}
			continue
		}
		index[k] = len(out)
		out = append(out, ev)
	}
	return out
}

// PrimaryKey is normalized title + ISO start + normalized location. ok is
// false when the location normalizes to the empty string.
func PrimaryKey(ev models.CalendarEvent) (string, bool) {
	loc := NormalizeLocation(ev.Location)
	if loc == "" {
		return "", false
	}
	return NormalizeTitle(ev.Title) + "|" + ev.Start.Format(time.RFC3339) + "|" + loc, true
}

// Key is PrimaryKey, or FallbackKey for events without a keyable
// location. The two key spaces never collide.
func Key(ev models.CalendarEvent) (string, bool) {
	if k, ok := PrimaryKey(ev); ok {
		return k, true
	}
	k, _ := FallbackKey(ev)
	return "~" + k, true
}

func hasPrimaryKey(ev models.CalendarEvent) bool {
	_, ok := PrimaryKey(ev)
	return ok
}

// FallbackKey is normalized title + ISO start.
func FallbackKey(ev models.CalendarEvent) (string, bool) {
	return NormalizeTitle(ev.Title) + "|" + ev.Start.Format(time.RFC3339), true
}

// NormalizeTitle lowercases, trims and collapses whitespace.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeLocation is NormalizeTitle with punctuation removed.
func NormalizeLocation(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return NormalizeTitle(stripped)
}

// MoreComplete reports whether candidate carries strictly more
// information than existing. Field presence counts first, then
// description length.
func MoreComplete(candidate, existing models.CalendarEvent) bool {
	sc, se := completeness(candidate), completeness(existing)
	if sc != se {
		return sc > se
	}
	return len(strings.TrimSpace(candidate.Description)) > len(strings.TrimSpace(existing.Description))
}

func completeness(ev models.CalendarEvent) int {
	score := 0
	if loc := strings.TrimSpace(ev.Location); loc != "" && loc != models.DefaultLocation {
		score++
	}
	if !ev.Organizer.IsZero() {
		score++
	}
	if ev.URL != "" {
		score++
	}
	if ev.RecurrenceRule != "" {
		score++
	}
	if len(ev.Categories) > 0 {
		score++
	}
	if strings.TrimSpace(ev.Description) != "" {
		score++
	}
	return score
}

// IsFuzzyDuplicate reports whether a and b describe the same event under
// the fuzzy rules.
func IsFuzzyDuplicate(a, b models.CalendarEvent) bool {
	ta, tb := NormalizeTitle(a.Title), NormalizeTitle(b.Title)
	if ta == tb {
		d := a.Start.Sub(b.Start)
		if d < 0 {
			d = -d
		}
		if d <= FuzzyStartWindow {
			return true
		}
	}
	return sameDate(a.Start, b.Start) && Similarity(ta, tb) > FuzzySimilarity
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
