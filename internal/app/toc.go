package app

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/webcorpus/internal/validate"
)

const tocTitle = "Table of contents"

// appendAutoToC inserts a table of contents of the H2/H3 headings after the
// guide's title and lead paragraph, once there are at least minHeadings of
// them. Manifest sections stay out of it, and a guide that already has a
// table of contents is returned as is.
func appendAutoToC(markdown string, minHeadings int) string {
	if minHeadings <= 0 {
		minHeadings = 6
	}
	var entries []validate.Heading
	for _, h := range validate.Headings(markdown) {
		if strings.EqualFold(h.Text, tocTitle) {
			return markdown
		}
		if h.Level < 2 || h.Level > 3 || validate.Slug(h.Text) == "" || strings.Contains(strings.ToLower(h.Text), "manifest") {
			continue
		}
		entries = append(entries, h)
	}
	if len(entries) < minHeadings {
		return markdown
	}

	var toc strings.Builder
	toc.WriteString("## " + tocTitle + "\n\n")
	for _, h := range entries {
		fmt.Fprintf(&toc, "%s- [%s](#%s)\n", strings.Repeat("  ", h.Level-2), h.Text, validate.Slug(h.Text))
	}

	lines := strings.Split(markdown, "\n")
	at := leadEnd(lines)
	out := make([]string, 0, len(lines)+2)
	out = append(out, lines[:at]...)
	if at > 0 && strings.TrimSpace(lines[at-1]) != "" {
		out = append(out, "")
	}
	out = append(out, toc.String())
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

// leadEnd returns the index of the line after the H1 title and the
// paragraph under it, or 0 when the document does not open with a title.
func leadEnd(lines []string) int {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[i]), "# ") {
		return 0
	}
	i++
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	for i < len(lines) {
		s := strings.TrimSpace(lines[i])
		if s == "" || strings.HasPrefix(s, "#") {
			break
		}
		i++
	}
	return i
}
