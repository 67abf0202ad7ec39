// Package assemble packs extracted pages into upload-ready documents. It is
// a pure in-memory transformation; store-specific encoding happens later.
package assemble

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webcorpus/internal/budget"
	"github.com/hyperifyio/webcorpus/internal/extract"
)

// Span maps a byte range of a document back to the page it came from.
// Start is inclusive and End exclusive.
type Span struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Truncated int    `json:"truncated_bytes,omitempty"`
}

// Document is one upload unit.
type Document struct {
	ID             string `json:"id"`
	Content        []byte `json:"-"`
	Provenance     []Span `json:"provenance"`
	Tokens         int    `json:"tokens"`
	TruncatedBytes int    `json:"truncated_bytes,omitempty"`
}

// Size is the content length in bytes.
func (d Document) Size() int { return len(d.Content) }

// URLs lists the provenance URLs in order.
func (d Document) URLs() []string {
	out := make([]string, len(d.Provenance))
	for i, s := range d.Provenance {
		out[i] = s.URL
	}
	return out
}

// Result is the output of Assemble.
type Result struct {
	Documents []Document
	// Excluded are usable pages left over after the document cap was reached.
	Excluded []extract.PageResult
	// Skipped are pages that contributed nothing: failed or empty.
	Skipped        []extract.PageResult
	TruncatedBytes int
}

// Assemble groups pages in input order. A document is closed when the next
// page would push it past maxDocBytes. A page that alone exceeds the limit
// gets its own document and is cut at the last paragraph break (or failing
// that, the last whitespace) at or below the limit; a page with no such
// break is kept whole. Once maxDocs documents exist the remaining usable
// pages are reported as excluded. Non-positive limits disable the
// corresponding check.
func Assemble(pages []extract.PageResult, maxDocBytes, maxDocs int) Result {
	var res Result
	var cur *builder

	flush := func() {
		if cur == nil || cur.len() == 0 {
			cur = nil
			return
		}
		res.Documents = append(res.Documents, cur.build(len(res.Documents)+1))
		cur = nil
	}

	for i, p := range pages {
		if p.Status == extract.StatusFailed || p.Text == "" {
			res.Skipped = append(res.Skipped, p)
			continue
		}
		size := len(p.Text)
		if cur != nil && maxDocBytes > 0 && cur.len()+size > maxDocBytes {
			flush()
		}
		if cur == nil {
			if maxDocs > 0 && len(res.Documents) >= maxDocs {
				for _, rest := range pages[i:] {
					if rest.Status == extract.StatusFailed || rest.Text == "" {
						res.Skipped = append(res.Skipped, rest)
						continue
					}
					res.Excluded = append(res.Excluded, rest)
				}
				break
			}
			cur = &builder{}
		}
		if maxDocBytes > 0 && size > maxDocBytes {
			text, dropped := truncate(p.Text, maxDocBytes)
			if dropped > 0 {
				log.Warn().Str("url", p.URL).Int("kept", len(text)).Int("dropped", dropped).Int("limit", maxDocBytes).Msg("page truncated to fit document size")
			} else {
				log.Warn().Str("url", p.URL).Int("size", size).Int("limit", maxDocBytes).Msg("oversized page has no break point; kept whole")
			}
			cur.add(p, text, dropped)
			res.TruncatedBytes += dropped
			flush()
			continue
		}
		cur.add(p, p.Text, 0)
	}
	flush()
	return res
}

type builder struct {
	b         strings.Builder
	spans     []Span
	truncated int
}

func (b *builder) len() int { return b.b.Len() }

func (b *builder) add(p extract.PageResult, text string, dropped int) {
	start := b.b.Len()
	b.b.WriteString(text)
	b.spans = append(b.spans, Span{URL: p.URL, Title: p.Title, Start: start, End: b.b.Len(), Truncated: dropped})
	b.truncated += dropped
}

func (b *builder) build(n int) Document {
	content := []byte(b.b.String())
	return Document{
		ID:             fmt.Sprintf("doc-%04d", n),
		Content:        content,
		Provenance:     b.spans,
		Tokens:         budget.EstimateTokensBytes(content),
		TruncatedBytes: b.truncated,
	}
}

// truncate cuts s to at most limit bytes at a paragraph break, else at
// whitespace. It returns s unchanged with zero dropped when neither exists.
// The kept text ends with a newline when cut at a paragraph break.
func truncate(s string, limit int) (string, int) {
	if len(s) <= limit {
		return s, 0
	}
	if i := strings.LastIndex(s[:limit], "\n\n"); i > 0 {
		kept := s[:i+1]
		return kept, len(s) - len(kept)
	}
	window := s[:limit+1]
	if j := strings.LastIndexAny(window, " \t\n"); j > 0 {
		kept := s[:j]
		return kept, len(s) - len(kept)
	}
	return s, 0
}
