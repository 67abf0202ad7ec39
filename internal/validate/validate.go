// Package validate checks a rendered query guide before it is written: the
// title, the outline of its profile, in-document anchor links and leftover
// template syntax.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Guide runs every check and returns the first failure.
func Guide(markdown string, outline []string) error {
	if err := Placeholders(markdown); err != nil {
		return err
	}
	if err := Structure(markdown, outline); err != nil {
		return err
	}
	return AnchorLinks(markdown)
}

// Heading is one Markdown ATX heading.
type Heading struct {
	Level int
	Text  string
}

// Headings returns the headings of markdown outside fenced code blocks, in
// document order.
func Headings(markdown string) []Heading {
	var out []Heading
	inFence := false
	for _, line := range splitLines(markdown) {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "```") {
			inFence = !inFence
			continue
		}
		if inFence || !isHeading(s) {
			continue
		}
		text := strings.TrimLeft(s, "#")
		out = append(out, Heading{Level: len(s) - len(text), Text: strings.TrimSpace(text)})
	}
	return out
}

// Structure requires a single "# " title as the first non-empty line and the
// outline sections in order. An outline entry matches a heading that
// contains it, case-insensitively, so "Go SDK" matches "Method 2: Go SDK".
func Structure(markdown string, outline []string) error {
	first := ""
	for _, line := range splitLines(markdown) {
		if s := strings.TrimSpace(line); s != "" {
			first = s
			break
		}
	}
	if first == "" {
		return fmt.Errorf("guide is empty; missing title")
	}
	if !strings.HasPrefix(first, "# ") {
		return fmt.Errorf("first non-empty line must be an H1 markdown heading")
	}

	heads := Headings(markdown)
	h1 := 0
	for _, h := range heads {
		if h.Level == 1 {
			h1++
		}
	}
	if h1 > 1 {
		return fmt.Errorf("guide must not contain additional H1 headings beyond the title")
	}

	pos := 0
	for idx, want := range outline {
		wanted := strings.ToLower(strings.TrimSpace(want))
		found := false
		for ; pos < len(heads); pos++ {
			if strings.Contains(strings.ToLower(heads[pos].Text), wanted) {
				found = true
				pos++
				break
			}
		}
		if !found {
			return fmt.Errorf("missing or out-of-order outline section: %q (index %d)", want, idx)
		}
	}
	return nil
}

var anchorLinkRe = regexp.MustCompile(`\[[^\]]+\]\((#[^)]+)\)`)

// AnchorLinks ensures that in-document anchor links reference existing headings.
func AnchorLinks(markdown string) error {
	slugs := map[string]struct{}{}
	for _, h := range Headings(markdown) {
		if slug := Slug(h.Text); slug != "" {
			slugs[slug] = struct{}{}
		}
	}
	var missing []string
	seen := map[string]struct{}{}
	for _, line := range splitLines(markdown) {
		for _, m := range anchorLinkRe.FindAllStringSubmatch(line, -1) {
			slug := Slug(strings.TrimPrefix(strings.TrimSpace(m[1]), "#"))
			if slug == "" {
				continue
			}
			if _, ok := slugs[slug]; ok {
				continue
			}
			if _, dup := seen[slug]; dup {
				continue
			}
			seen[slug] = struct{}{}
			missing = append(missing, slug)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("broken anchor links to missing headings: %v", missing)
	}
	return nil
}

var actionRe = regexp.MustCompile(`\{\{-?\s*[.$a-z]`)

// Placeholders rejects template actions that survived rendering and the
// "<no value>" marker text/template prints for missing map keys.
func Placeholders(markdown string) error {
	for i, line := range splitLines(markdown) {
		if actionRe.MatchString(line) {
			return fmt.Errorf("line %d: unrendered template action", i+1)
		}
		if strings.Contains(line, "<no value>") {
			return fmt.Errorf("line %d: missing template value", i+1)
		}
	}
	return nil
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func isHeading(s string) bool {
	if !strings.HasPrefix(s, "#") {
		return false
	}
	t := strings.TrimLeft(s, "#")
	return len(s)-len(t) <= 6 && strings.HasPrefix(t, " ")
}

// Slug derives the anchor GitHub generates for a heading, restricted to
// ASCII letters and digits joined by single hyphens.
func Slug(s string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !hyphen {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
