package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// document is the cleaned content of one HTML page.
type document struct {
	Title  string
	Text   string
	Format Format
}

// noiseSelectors are removed from the whole tree before a content root is
// picked. Headers are handled separately so article headings survive.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "aside", "iframe", "form", "button", "dialog",
	"svg", "canvas", "video", "audio",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]", "[role=complementary]",
	"[aria-hidden=true]",
	".advertisement", ".ads", ".ad", ".ad-container", ".sponsored",
	".tracking", ".analytics", ".cookie-banner", ".popup",
	".sidebar", ".menu", ".navbar", ".navigation", ".breadcrumb", ".breadcrumbs",
	".share", ".social", ".comments", ".related", ".toc",
}

// contentRoots are tried in order; the first match becomes the content root.
var contentRoots = []string{"main", "article", "[role=main]", "body"}

// blockSelector finds elements that carry document structure worth keeping
// as markdown.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, table, blockquote"

// fromHTML cleans an HTML page and renders its content root in the out
// format. The root is <main>, <article> or [role=main], falling back to
// <body>; navigation, ads and consent banners are removed first.
func fromHTML(input []byte, sourceURL string, out Format) (document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return document{}, fmt.Errorf("parse html: %w", err)
	}
	title := pageTitle(doc)

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("header").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest("main, article").Length() == 0
	}).Remove()
	doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "html", "body", "main", "article":
			return false
		}
		return looksLikeBoilerplate(s)
	}).Remove()

	root := doc.Selection
	for _, sel := range contentRoots {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}

	// Markdown adds nothing over plain text for pages without block structure.
	if out == FormatMarkdown && root.Find(blockSelector).Length() == 0 {
		out = FormatPlain
	}

	switch out {
	case FormatHTML:
		h, err := goquery.OuterHtml(root)
		if err != nil {
			return document{}, fmt.Errorf("render html: %w", err)
		}
		return document{Title: title, Text: finish(norm.NFC.String(strings.TrimSpace(h))), Format: FormatHTML}, nil
	case FormatMarkdown:
		h, err := goquery.OuterHtml(root)
		if err == nil {
			var opts []converter.ConvertOptionFunc
			if d := domainOf(sourceURL); d != "" {
				opts = append(opts, converter.WithDomain(d))
			}
			md, cerr := htmltomarkdown.ConvertString(h, opts...)
			if cerr == nil {
				return document{Title: title, Text: normalizeMarkdown(md), Format: FormatMarkdown}, nil
			}
		}
		// fall back to plain text on conversion problems
	}

	text := normalizeWhitespace(norm.NFC.String(plainText(root)))
	return document{Title: title, Text: finish(text), Format: FormatPlain}, nil
}

// pageTitle prefers <title>, then the first <h1>, then og:title.
func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
