package processor

import (
	"regexp"
	"strings"

	"github.com/mfenderov/calscrape/pkg/models"
	"github.com/samber/lo"
)

const monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

const usStates = `(?:AL|AK|AZ|AR|CA|CO|CT|DE|FL|GA|HI|ID|IL|IN|IA|KS|KY|LA|ME|MD|MA|MI|MN|MS|MO|MT|NE|NV|NH|NJ|NM|NY|NC|ND|OH|OK|OR|PA|RI|SC|SD|TN|TX|UT|VT|VA|WA|WV|WI|WY|DC)`

var temporalPatterns = []*regexp.Regexp{
	// ISO 8601
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?)?`),
	// March 3, 2025 / Mar. 3rd
	regexp.MustCompile(`(?i)\b` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`),
	// 3 March 2025 / 3rd of March
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `\b\.?(?:,?\s+\d{4})?`),
	// 03/01/2025, 1.3.25
	regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`),
	// Saturday, March 1
	regexp.MustCompile(`(?i)\b(?:mon|tue|tues|wed|wednes|thu|thur|thurs|fri|sat|satur|sun)(?:day)?\.?,?\s+` + monthNames + `\.?\s+\d{1,2}\b`),
	// 6PM, 6:30 p.m., 18:00, noon
	regexp.MustCompile(`(?i)\b\d{1,2}(?::[0-5]\d)?\s*(?:a\.?m\.?|p\.?m\.?)|\b(?:[01]?\d|2[0-3]):[0-5]\d\b|\b(?:noon|midnight)\b`),
	// relative terms
	regexp.MustCompile(`(?i)\b(?:today|tomorrow|tonight|this\s+(?:week|weekend|month|evening)|next\s+(?:week|weekend|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`),
}

var locationPatterns = []*regexp.Regexp{
	// street addresses
	regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][A-Za-z0-9'.-]*\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Place|Pl|Court|Ct|Parkway|Pkwy|Square|Sq|Highway|Hwy)\b\.?`),
	// venue and building names
	regexp.MustCompile(`\b(?:[A-Z][\w'&-]*\s+){1,4}(?:Hall|Center|Centre|Theater|Theatre|Auditorium|Hotel|Library|Museum|Park|Stadium|Arena|Church|Gallery|Pavilion|Building|Ballroom|Campus|Plaza|Convention Center)\b`),
	// virtual meetings
	regexp.MustCompile(`(?i)\b(?:zoom|google\s+meet|microsoft\s+teams|webex|online|virtual(?:ly)?|livestream(?:ed)?|live\s+stream)\b`),
	// City, ST
	regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?,\s` + usStates + `\b`),
}

var organizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:[A-Z][\w&'.-]*\s+){1,4}(?:Inc|LLC|Ltd|Corp|Corporation|Company|Foundation|Association|Society|Institute|University|College|Club|Council|Committee|League|Alliance|Chamber of Commerce)\b\.?`),
	regexp.MustCompile(`\b(?:University|College|Institute)\s+of\s+[A-Z][a-z]+(?:\s[A-Z][a-z]+)?`),
}

var keywordPattern = regexp.MustCompile(`(?i)\b(conference|workshop|seminar|webinar|meetup|meeting|festival|concert|exhibition|exhibit|gala|lecture|talk|class|course|session|summit|fair|tournament|ceremony|party|celebration|performance|screening|fundraiser|networking|open house|register|registration|rsvp|tickets?|admission|join us|speaker|keynote|agenda|event)s?\b`)

var rsvpPattern = regexp.MustCompile(`(?i)\b(?:rsvp|register(?:\s+(?:now|here|today|online))?|registration|sign\s+up|buy\s+tickets?|get\s+(?:your\s+)?tickets?|tickets?\s+(?:are\s+)?(?:available|on\s+sale)|reserve\s+(?:your\s+|a\s+)?(?:spot|seat)|book\s+now)\b`)

var metadataPattern = regexp.MustCompile(`(?i)\b(?:posted|updated|published|last\s+modified|author|written\s+by|copyright|all\s+rights\s+reserved)\b|©`)

func matchAll(patterns []*regexp.Regexp, text string) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllString(text, -1) {
			out = append(out, strings.TrimSpace(m))
		}
	}
	return lo.Uniq(out)
}

// ExtractEntities runs every pattern family over text.
func ExtractEntities(text string) models.Entities {
	keywords := lo.Map(keywordPattern.FindAllString(text, -1), func(k string, _ int) string {
		return strings.ToLower(k)
	})
	return models.Entities{
		Dates:         matchAll(temporalPatterns, text),
		Locations:     matchAll(locationPatterns, text),
		Organizations: matchAll(organizationPatterns, text),
		Keywords:      lo.Uniq(keywords),
	}
}

// HasRSVP reports whether text uses registration or ticketing phrasing.
func HasRSVP(text string) bool {
	return rsvpPattern.MatchString(text)
}
