package extraction

import (
	"strings"

	"github.com/mfenderov/calscrape/internal/llm"
	"github.com/mfenderov/calscrape/internal/partialjson"
)

// TruncationReason explains why a reply was judged cut off.
type TruncationReason string

const (
	NotTruncated      TruncationReason = ""
	TruncatedTokenCap TruncationReason = "token_cap"
	TruncatedLength   TruncationReason = "finish_length"
	TruncatedDangling TruncationReason = "dangling_token"
	TruncatedMidField TruncationReason = "mid_field_name"
	TruncatedUnclosed TruncationReason = "unterminated"
)

// TruncationDetector decides whether a reply needs a continuation turn.
// FieldNames lists the keys whose prefixes mark a reply cut off inside a
// field name.
type TruncationDetector struct {
	FieldNames []string
}

// DefaultTruncationDetector knows the field names of the output contract.
func DefaultTruncationDetector() TruncationDetector {
	return TruncationDetector{FieldNames: []string{
		"title", "startDateTime", "endDateTime", "location", "description",
		"organizer", "timezone", "recurrenceRule", "categories", "url",
		"status", "events", "detectedTimezone", "warnings",
	}}
}

// Check reports whether text was truncated. maxTokens of zero disables the
// token cap check. Replies without any JSON are natural stops. A reply
// ending in a closing bracket is still truncated when the structure it
// opened is left open.
func (d TruncationDetector) Check(text string, completionTokens, maxTokens int, finishReason string) (bool, TruncationReason) {
	if finishReason == llm.FinishReasonLength {
		return true, TruncatedLength
	}
	if maxTokens > 0 && completionTokens >= maxTokens {
		return true, TruncatedTokenCap
	}

	t := strings.TrimSpace(partialjson.StripFences(text))
	if t == "" || !looksLikeJSON(t) {
		return false, NotTruncated
	}

	switch t[len(t)-1] {
	case '}', ']':
		// A reply that opens its own structure must also close it; a
		// continuation fragment is judged by its last byte alone.
		if partialjson.OpensStructure(t) {
			if _, complete, err := partialjson.Parse(t); err == nil && !complete {
				return true, TruncatedUnclosed
			}
		}
		return false, NotTruncated
	case '"', ',', ':':
		return true, TruncatedDangling
	}
	if d.midFieldName(t) {
		return true, TruncatedMidField
	}
	return true, TruncatedUnclosed
}

// midFieldName matches text ending in an opening quote followed by a
// proper prefix of a known field name, such as `"tit` or `"loc`.
func (d TruncationDetector) midFieldName(t string) bool {
	q := strings.LastIndexByte(t, '"')
	if q < 0 {
		return false
	}
	tail := t[q+1:]
	if tail == "" {
		return false
	}
	for _, name := range d.FieldNames {
		if len(tail) < len(name) && strings.HasPrefix(name, tail) {
			return true
		}
	}
	return false
}

// looksLikeJSON reports whether s contains any JSON punctuation. A
// continuation turn may carry only closing delimiters.
func looksLikeJSON(s string) bool {
	return strings.ContainsAny(s, "{}[]\"")
}
