package markdown

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	listPattern     = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkPattern     = regexp.MustCompile(`\[.+?\]\(.+?\)`)
	htmlOpenPattern = regexp.MustCompile(`^<([a-zA-Z][a-zA-Z0-9]*|!--)[\s>/]`)
)

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsMarkdownURL checks if the URL path names a markdown file. Query
// strings and fragments are ignored.
func IsMarkdownURL(rawURL string) bool {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
func IsMarkdownContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if looksLikeHTML(trimmed) {
		return false
	}
	return headingPattern.MatchString(trimmed) ||
		listPattern.MatchString(trimmed) ||
		linkPattern.MatchString(trimmed)
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	if strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body") {
		return true
	}
	return htmlOpenPattern.MatchString(content) && strings.Contains(lower, "</")
}

// URLVariants returns candidate markdown URLs for a page. GitHub blob URLs
// map to their raw form; URLs that already name a markdown file have none.
func URLVariants(pageURL string) []string {
	if strings.Contains(pageURL, "github.com") && strings.Contains(pageURL, "/blob/") {
		raw := strings.Replace(pageURL, "github.com", "raw.githubusercontent.com", 1)
		raw = strings.Replace(raw, "/blob/", "/", 1)
		return []string{raw}
	}

	if IsMarkdownURL(pageURL) {
		return []string{}
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.RawQuery != "" || u.Fragment != "" {
		return []string{}
	}
	if strings.Trim(u.Path, "/") == "" {
		return []string{strings.TrimSuffix(pageURL, "/") + "/index.md"}
	}
	return []string{strings.TrimSuffix(pageURL, "/") + ".md"}
}

// Detect combines all detection methods to determine if content is markdown.
// Checks in order: Content-Type, URL, then content heuristics. An explicit
// HTML content type only yields to the content heuristics.
func Detect(rawURL, contentType, content string) bool {
	if IsMarkdownContentType(contentType) {
		return true
	}
	if strings.HasPrefix(strings.ToLower(contentType), "text/html") {
		return IsMarkdownContent(content)
	}
	if IsMarkdownURL(rawURL) {
		return true
	}
	return IsMarkdownContent(content)
}
