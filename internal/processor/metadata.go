package processor

import (
	"strings"

	"golang.org/x/net/html"
)

// Metadata describes the page as a whole.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
}

// extractMetadata walks the parsed tree for the <title>, the meta
// description and the document language. og: properties fill gaps.
func extractMetadata(root *html.Node) Metadata {
	var (
		meta            Metadata
		ogTitle, ogDesc string
		firstH1         string
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if meta.Language == "" {
					meta.Language = strings.TrimSpace(attr(n, "lang"))
				}
			case "title":
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				content := strings.TrimSpace(attr(n, "content"))
				switch strings.ToLower(attr(n, "name") + attr(n, "property")) {
				case "description":
					if meta.Description == "" {
						meta.Description = content
					}
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDesc = content
				}
			case "h1":
				if firstH1 == "" {
					firstH1 = nodeText(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if meta.Title == "" {
		meta.Title = ogTitle
	}
	if meta.Title == "" {
		meta.Title = firstH1
	}
	if meta.Description == "" {
		meta.Description = ogDesc
	}
	return meta
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
