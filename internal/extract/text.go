package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// breaks is the number of newlines written before and after an element.
type breaks struct{ before, after int }

var blockBreaks = map[string]breaks{
	"h1":         {1, 2},
	"h2":         {1, 2},
	"h3":         {1, 2},
	"h4":         {1, 2},
	"h5":         {1, 2},
	"h6":         {1, 2},
	"p":          {1, 2},
	"blockquote": {1, 2},
	"table":      {1, 2},
	"section":    {1, 2},
	"pre":        {1, 2},
	"li":         {1, 1},
	"tr":         {1, 1},
	"div":        {1, 1},
	"ul":         {1, 0},
	"ol":         {1, 0},
	"br":         {1, 0},
	"hr":         {1, 0},
}

var skipElements = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// plainText renders the text of sel with line breaks at block boundaries.
// Whitespace is left for normalizeWhitespace.
func plainText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			name := strings.ToLower(n.Data)
			if skipElements[name] {
				return
			}
			if name == "td" || name == "th" {
				b.WriteByte(' ')
			}
			br := blockBreaks[name]
			b.WriteString(strings.Repeat("\n", br.before))
			defer b.WriteString(strings.Repeat("\n", br.after))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// boilerplateMarkers in an id, class, role or aria-label mark consent
// banners and subscription overlays.
var boilerplateMarkers = []string{"cookie", "consent", "gdpr", "newsletter-signup", "subscribe-modal", "paywall"}

func looksLikeBoilerplate(s *goquery.Selection) bool {
	for _, attr := range []string{"id", "class", "role", "aria-label"} {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		for _, m := range boilerplateMarkers {
			if strings.Contains(v, m) {
				return true
			}
		}
	}
	return false
}

// normalizeWhitespace collapses runs of whitespace within each line, keeps
// at most one blank line between paragraphs and trims blank lines at both
// ends.
func normalizeWhitespace(s string) string {
	var out []string
	pendingBlank := false
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			pendingBlank = len(out) > 0
			continue
		}
		if pendingBlank {
			out = append(out, "")
			pendingBlank = false
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string { return strings.Join(strings.Fields(s), " ") }
