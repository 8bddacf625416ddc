package partialjson

import "strings"

// StripFences removes markdown code fence lines (```json, ```) from model
// output, leaving all other text byte-for-byte intact.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// HasStructure reports whether s contains the start of a JSON object or
// array.
func HasStructure(s string) bool {
	return strings.ContainsAny(s, "{[")
}

// OpensStructure reports whether s, ignoring fences and leading
// whitespace, begins a new JSON object or array.
func OpensStructure(s string) bool {
	t := strings.TrimSpace(StripFences(s))
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")
}
