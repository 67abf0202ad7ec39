package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// Format tags the representation of extracted text.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
	FormatHTML     Format = "html"
)

// ParseFormat accepts markdown, plain (or text) and html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "plain", "text", "txt":
		return FormatPlain, nil
	case "html", "htm":
		return FormatHTML, nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Status is the per-page extraction outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// PageResult is one extracted page. Text is the cleaned content and is what
// the assembler packs into documents.
type PageResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Format   Format `json:"format"`
	Text     string `json:"-"`
	RawBytes int    `json:"raw_bytes"`
}

// Bytes is the size of the cleaned text.
func (p PageResult) Bytes() int { return len(p.Text) }

// DefaultMinTextChars is the partial-extraction threshold in non-space runes.
const DefaultMinTextChars = 200

// Extractor converts raw page payloads into PageResults. It holds only
// settings and is safe for concurrent use.
type Extractor struct {
	// MinTextChars below which a page is tagged partial. Zero means
	// DefaultMinTextChars; negative disables the check.
	MinTextChars int
	// Output is the preferred format for HTML payloads. Empty means markdown.
	Output Format
}

// Extract never fails the caller; problems are reported through Status and
// Reason. hint describes the payload format; empty means sniff.
func (e Extractor) Extract(sourceURL string, payload []byte, hint Format) PageResult {
	res := PageResult{URL: sourceURL, RawBytes: len(payload)}
	if len(bytes.TrimSpace(payload)) == 0 {
		return failed(res, "empty payload")
	}
	if bytes.IndexByte(payload, 0) >= 0 {
		return failed(res, "binary payload")
	}
	if !utf8.Valid(payload) {
		decoded, ok := decodeLegacy(payload)
		if !ok {
			return failed(res, "undecodable payload")
		}
		payload = decoded
	}
	if hint == "" {
		hint = sniff(payload)
	}

	switch hint {
	case FormatHTML:
		out := e.Output
		if out == "" {
			out = FormatMarkdown
		}
		page, err := fromHTML(payload, sourceURL, out)
		if err != nil {
			return failed(res, err.Error())
		}
		res.Title = page.Title
		res.Format = page.Format
		res.Text = page.Text
	case FormatMarkdown:
		res.Format = FormatMarkdown
		res.Text = normalizeMarkdown(string(payload))
		res.Title = markdownTitle(res.Text)
	default:
		res.Format = FormatPlain
		res.Text = finish(normalizeWhitespace(norm.NFC.String(string(payload))))
	}
	if strings.TrimSpace(res.Title) == "" {
		res.Title = titleFromURL(sourceURL)
	}
	res.Title = collapseSpaces(strings.TrimSpace(norm.NFC.String(res.Title)))

	threshold := e.MinTextChars
	if threshold == 0 {
		threshold = DefaultMinTextChars
	}
	n := visibleRunes(res.Text)
	switch {
	case n == 0:
		res.Status = StatusPartial
		res.Reason = "no text extracted"
	case threshold > 0 && n < threshold:
		res.Status = StatusPartial
		res.Reason = fmt.Sprintf("text below minimum length (%d < %d)", n, threshold)
	default:
		res.Status = StatusSuccess
	}
	return res
}

func failed(res PageResult, reason string) PageResult {
	res.Status = StatusFailed
	res.Reason = reason
	res.Text = ""
	return res
}

// decodeLegacy converts a non-UTF-8 payload using the charset declared in
// the document or guessed from its bytes.
func decodeLegacy(b []byte) ([]byte, bool) {
	enc, _, _ := charset.DetermineEncoding(b, "text/html")
	if enc == nil {
		return nil, false
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil || !utf8.Valid(out) {
		return nil, false
	}
	return out, true
}

func sniff(b []byte) Format {
	head := bytes.ToLower(bytes.TrimSpace(b))
	if len(head) > 512 {
		head = head[:512]
	}
	for _, marker := range [][]byte{[]byte("<!doctype html"), []byte("<html"), []byte("<head"), []byte("<body"), []byte("<div"), []byte("<p>"), []byte("<article"), []byte("<main")} {
		if bytes.Contains(head, marker) {
			return FormatHTML
		}
	}
	if bytes.HasPrefix(head, []byte("#")) || bytes.Contains(head, []byte("\n#")) || bytes.Contains(head, []byte("](")) {
		return FormatMarkdown
	}
	return FormatPlain
}

func visibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// finish guarantees a single trailing newline on non-empty text.
func finish(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if s == "" {
		return ""
	}
	return s + "\n"
}

// normalizeMarkdown trims trailing spaces and keeps at most one blank line
// between blocks. Lines inside fenced code blocks are left intact.
func normalizeMarkdown(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, strings.TrimRight(line, " \t"))
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		line = strings.TrimRight(strings.ReplaceAll(line, "\u00a0", " "), " \t\r")
		if line == "" {
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
		}
		out = append(out, line)
	}
	return finish(strings.Join(out, "\n"))
}

func markdownTitle(md string) string {
	for _, line := range strings.Split(md, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(t, "# "))
		}
	}
	return ""
}

// titleFromURL uses the last path segment, or the host for a root URL.
func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u == nil {
		return "Untitled"
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "" || base == "." || base == "/" {
		if u.Hostname() != "" {
			return u.Hostname()
		}
		return "Untitled"
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}
