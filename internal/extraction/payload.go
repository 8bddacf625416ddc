package extraction

import "strings"

// Payload is the shape a parsed reply took. It is one of EventsField,
// DirectArray or SingleObject.
type Payload interface {
	isPayload()
}

// EventsField is an object with an "events" array.
type EventsField struct {
	Events           []map[string]any
	DetectedTimezone string
	Warnings         []string
}

// DirectArray is a bare array of event objects.
type DirectArray struct {
	Events []map[string]any
}

// SingleObject is one event object on its own.
type SingleObject struct {
	Event map[string]any
}

func (EventsField) isPayload()  {}
func (DirectArray) isPayload()  {}
func (SingleObject) isPayload() {}

// ClassifyPayload tries the strategies in order: an "events" field, a
// bare array, a single object with title and startDateTime.
func ClassifyPayload(v any) (Payload, bool) {
	switch t := v.(type) {
	case map[string]any:
		if raw, ok := t["events"]; ok {
			arr, _ := raw.([]any)
			return EventsField{
				Events:           objects(arr),
				DetectedTimezone: stringValue(t["detectedTimezone"]),
				Warnings:         stringList(t["warnings"]),
			}, true
		}
		if stringValue(t["title"]) != "" && stringValue(t["startDateTime"]) != "" {
			return SingleObject{Event: t}, true
		}
	case []any:
		return DirectArray{Events: objects(t)}, true
	}
	return nil, false
}

// Records returns the event objects carried by p.
func Records(p Payload) []map[string]any {
	switch p := p.(type) {
	case EventsField:
		return p.Events
	case DirectArray:
		return p.Events
	case SingleObject:
		return []map[string]any{p.Event}
	default:
		return nil
	}
}

func objects(arr []any) []map[string]any {
	var out []map[string]any
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
