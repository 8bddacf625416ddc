package processor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const nonContentSelector = "script, style, noscript, iframe, svg, form, template, nav, aside"

var boilerplateTokens = map[string]bool{
	"ad": true, "ads": true, "advert": true, "advertisement": true,
	"cookie": true, "cookies": true, "consent": true,
	"banner": true, "social": true, "share": true, "sharing": true,
	"sidebar": true, "popup": true, "modal": true,
	"newsletter": true, "subscribe": true, "promo": true,
}

var mainContentSelectors = []string{
	"main",
	"[role=main]",
	"article",
	"#main-content",
	"#content",
	".main-content",
	".content",
	".events",
	".event-list",
	".calendar",
	"#events",
}

// clean removes non-content nodes from doc in place.
func clean(doc *goquery.Document) {
	doc.Find(nonContentSelector).Remove()

	// Page-level headers and footers only; an article's own header often
	// carries the event title.
	doc.Find("header, footer").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("article, main, [itemscope], [typeof]").Length() == 0 {
			s.Remove()
		}
	})

	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "html", "body", "main":
			return
		}
		if _, ok := s.Attr("itemscope"); ok {
			return
		}
		if isBoilerplate(s.AttrOr("class", "") + " " + s.AttrOr("id", "")) {
			s.Remove()
		}
	})

	for _, n := range doc.Nodes {
		removeComments(n)
	}
}

func isBoilerplate(attrs string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(attrs), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t' || r == '\n'
	})
	for _, t := range tokens {
		if boilerplateTokens[t] {
			return true
		}
	}
	return false
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// mainContent picks the highest-priority content region with enough text.
// The second return is false when falling back to the whole body.
func mainContent(doc *goquery.Document) (*goquery.Selection, bool) {
	for _, sel := range mainContentSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if len(nodeText(s.Get(0))) >= minMainContentChars {
			return s, true
		}
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return doc.Selection, false
	}
	return body, false
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true, "ul": true, "ol": true,
	"td": true, "tr": true, "table": true, "dd": true, "dt": true, "dl": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"address": true, "blockquote": true, "pre": true, "header": true, "footer": true, "time": true,
}

// nodeText returns the whitespace-normalized text of n with element
// boundaries treated as spaces.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if blockElements[n.Data] {
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
