package processor

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mfenderov/calscrape/pkg/models"
)

// extractStructured collects event candidates from JSON-LD, microdata and
// RDFa. It must run before scripts are stripped.
func extractStructured(doc *goquery.Document) []models.StructuredEvent {
	var out []models.StructuredEvent
	out = append(out, extractJSONLD(doc)...)
	out = append(out, extractMicrodata(doc)...)
	out = append(out, extractRDFa(doc)...)
	return out
}

func extractJSONLD(doc *goquery.Document) []models.StructuredEvent {
	var out []models.StructuredEvent
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			slog.Debug("skipping malformed JSON-LD block", "error", err)
			return
		}
		walkJSONLD(v, &out)
	})
	return out
}

func walkJSONLD(v any, out *[]models.StructuredEvent) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			walkJSONLD(item, out)
		}
	case map[string]any:
		if isEventType(node["@type"]) {
			ev := jsonLDEvent(node)
			if ev.Title != "" || ev.StartDate != "" {
				*out = append(*out, ev)
			}
			if sub, ok := node["subEvent"]; ok {
				walkJSONLD(sub, out)
			}
			return
		}
		for key, child := range node {
			if key == "@context" {
				continue
			}
			walkJSONLD(child, out)
		}
	}
}

// isEventType accepts "Event", any subtype ending in "Event" and lists
// containing one, with or without a schema.org prefix.
func isEventType(t any) bool {
	switch tt := t.(type) {
	case string:
		return strings.HasSuffix(localName(tt), "Event")
	case []any:
		for _, item := range tt {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func localName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "/:#"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func jsonLDEvent(m map[string]any) models.StructuredEvent {
	title := stringField(m["name"])
	if title == "" {
		title = stringField(m["headline"])
	}
	return models.StructuredEvent{
		Title:       title,
		StartDate:   stringField(m["startDate"]),
		EndDate:     stringField(m["endDate"]),
		Location:    jsonLDLocation(m["location"]),
		Description: stringField(m["description"]),
		URL:         stringField(m["url"]),
		Organizer:   jsonLDName(m["organizer"]),
		Status:      statusWord(stringField(m["eventStatus"])),
		Source:      models.SourceJSONLD,
		Confidence:  models.SourceJSONLD.DefaultConfidence(),
	}
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return stringField(t[0])
		}
	case map[string]any:
		if s := stringField(t["@value"]); s != "" {
			return s
		}
		return stringField(t["@id"])
	}
	return ""
}

func jsonLDName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return jsonLDName(t[0])
		}
	case map[string]any:
		return stringField(t["name"])
	}
	return ""
}

func jsonLDLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return jsonLDLocation(t[0])
		}
	case map[string]any:
		if localName(stringField(t["@type"])) == "VirtualLocation" {
			if name := stringField(t["name"]); name != "" {
				return name
			}
			return "Online"
		}
		parts := []string{stringField(t["name"])}
		switch addr := t["address"].(type) {
		case string:
			parts = append(parts, strings.TrimSpace(addr))
		case map[string]any:
			parts = append(parts,
				stringField(addr["streetAddress"]),
				stringField(addr["addressLocality"]),
				strings.TrimSpace(stringField(addr["addressRegion"])+" "+stringField(addr["postalCode"])),
			)
		}
		return joinNonEmpty(parts, ", ")
	}
	return ""
}

// statusWord maps schema.org event statuses to a plain word understood by
// models.ParseStatus.
func statusWord(s string) string {
	if s == "" {
		return ""
	}
	name := strings.TrimPrefix(localName(s), "Event")
	return strings.ToLower(name)
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && !containsFold(kept, p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func extractMicrodata(doc *goquery.Document) []models.StructuredEvent {
	var out []models.StructuredEvent
	doc.Find("[itemscope][itemtype]").Each(func(_ int, scope *goquery.Selection) {
		if !hasEventToken(scope.AttrOr("itemtype", "")) {
			return
		}
		props := ownProperties(scope, "[itemprop]", "[itemscope]", "itemprop", "")
		ev := propsEvent(props, models.SourceMicrodata)
		if ev.Title != "" || ev.StartDate != "" {
			out = append(out, ev)
		}
	})
	return out
}

func extractRDFa(doc *goquery.Document) []models.StructuredEvent {
	var out []models.StructuredEvent
	doc.Find("[typeof]").Each(func(_ int, scope *goquery.Selection) {
		if !hasEventToken(scope.AttrOr("typeof", "")) {
			return
		}
		props := ownProperties(scope, "[property]", "[typeof]", "property", "schema:")
		ev := propsEvent(props, models.SourceRDFa)
		if ev.Title != "" || ev.StartDate != "" {
			out = append(out, ev)
		}
	})
	return out
}

func hasEventToken(attrValue string) bool {
	for _, t := range strings.Fields(attrValue) {
		if isEventType(t) {
			return true
		}
	}
	return false
}

// ownProperties collects name -> value for property elements whose nearest
// scope is scope itself. Nested scopes contribute only their name/address
// text through the property that holds them.
func ownProperties(scope *goquery.Selection, propSel, scopeSel, attr, prefix string) map[string]string {
	props := make(map[string]string)
	scopeNode := scope.Get(0)
	scope.Find(propSel).Each(func(_ int, el *goquery.Selection) {
		if el.Parent().Closest(scopeSel).Get(0) != scopeNode {
			return
		}
		for _, name := range strings.Fields(el.AttrOr(attr, "")) {
			name = localName(strings.TrimPrefix(name, prefix))
			if _, exists := props[name]; exists {
				continue
			}
			if v := propertyValue(el, name, propSel, attr, prefix); v != "" {
				props[name] = v
			}
		}
	})
	return props
}

func propertyValue(el *goquery.Selection, name, propSel, attr, prefix string) string {
	if v, ok := el.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	switch goquery.NodeName(el) {
	case "time":
		if v, ok := el.Attr("datetime"); ok {
			return strings.TrimSpace(v)
		}
	case "a", "link":
		if name == "url" {
			return strings.TrimSpace(el.AttrOr("href", ""))
		}
	case "meta":
		return ""
	}

	// Nested Place or Organization: prefer its name and address.
	_, nestedMicrodata := el.Attr("itemscope")
	_, nestedRDFa := el.Attr("typeof")
	if nestedMicrodata || nestedRDFa {
		var parts []string
		el.Find(propSel).Each(func(_ int, child *goquery.Selection) {
			switch localName(strings.TrimPrefix(child.AttrOr(attr, ""), prefix)) {
			case "name", "address", "streetAddress", "addressLocality", "addressRegion":
				if _, ok := child.Attr("content"); ok {
					parts = append(parts, child.AttrOr("content", ""))
					return
				}
				if child.Find(propSel).Length() == 0 {
					parts = append(parts, nodeText(child.Get(0)))
				}
			}
		})
		if len(parts) > 0 {
			return joinNonEmpty(parts, ", ")
		}
	}
	return nodeText(el.Get(0))
}

func propsEvent(props map[string]string, source models.StructuredSource) models.StructuredEvent {
	title := props["name"]
	if title == "" {
		title = props["summary"]
	}
	return models.StructuredEvent{
		Title:       title,
		StartDate:   props["startDate"],
		EndDate:     props["endDate"],
		Location:    props["location"],
		Description: props["description"],
		URL:         props["url"],
		Organizer:   props["organizer"],
		Status:      statusWord(props["eventStatus"]),
		Source:      source,
		Confidence:  source.DefaultConfidence(),
	}
}
