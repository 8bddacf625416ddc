package ics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"
)

// supportedRuleParts is the RRULE subset emitted, in output order.
var supportedRuleParts = []string{"FREQ", "INTERVAL", "COUNT", "UNTIL", "BYDAY", "BYMONTH", "BYMONTHDAY"}

// NormalizeRRule keeps the supported parts of rule in canonical order and
// validates the result. Unsupported parts are dropped; a rule without FREQ
// or one rrule-go rejects is an error. COUNT wins over UNTIL.
func NormalizeRRule(rule string) (string, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(strings.TrimPrefix(rule, "RRULE:"), "rrule:")
	if rule == "" {
		return "", errors.New("empty recurrence rule")
	}

	parts := make(map[string]string)
	for _, part := range strings.Split(rule, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.ReplaceAll(value, " ", ""))
		if value != "" {
			parts[key] = value
		}
	}
	if parts["FREQ"] == "" {
		return "", fmt.Errorf("recurrence rule %q has no FREQ", rule)
	}

	if parts["COUNT"] != "" {
		delete(parts, "UNTIL")
	}

	kept := make([]string, 0, len(supportedRuleParts))
	for _, key := range supportedRuleParts {
		if v, ok := parts[key]; ok {
			kept = append(kept, key+"="+v)
		}
	}
	normalized := strings.Join(kept, ";")

	if _, err := rrule.StrToRRule(normalized); err != nil {
		return "", fmt.Errorf("failed to parse recurrence rule %q: %w", rule, err)
	}
	return normalized, nil
}
