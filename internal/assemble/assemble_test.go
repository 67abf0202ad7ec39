package assemble

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/webcorpus/internal/extract"
)

func page(url, text string) extract.PageResult {
	return extract.PageResult{URL: url, Title: url, Status: extract.StatusSuccess, Text: text}
}

func TestAssemble_GroupsInOrderUnderLimit(t *testing.T) {
	pages := []extract.PageResult{
		page("a", strings.Repeat("a", 40)+"\n"),
		page("b", strings.Repeat("b", 40)+"\n"),
		page("c", strings.Repeat("c", 40)+"\n"),
	}
	res := Assemble(pages, 100, 0)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, []string{"a", "b"}, res.Documents[0].URLs())
	assert.Equal(t, []string{"c"}, res.Documents[1].URLs())
	assert.Equal(t, 82, res.Documents[0].Size())
	assert.Equal(t, "doc-0001", res.Documents[0].ID)
	assert.Equal(t, "doc-0002", res.Documents[1].ID)

	d := res.Documents[0]
	span := d.Provenance[1]
	assert.Equal(t, pages[1].Text, string(d.Content[span.Start:span.End]))
	assert.Greater(t, d.Tokens, 0)
}

func TestAssemble_SkipsFailedAndEmptyPages(t *testing.T) {
	pages := []extract.PageResult{
		page("ok", "hello\n"),
		{URL: "bad", Status: extract.StatusFailed, Reason: "empty payload"},
		{URL: "empty", Status: extract.StatusPartial},
		{URL: "partial", Status: extract.StatusPartial, Text: "tiny\n"},
	}
	res := Assemble(pages, 1000, 10)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, []string{"ok", "partial"}, res.Documents[0].URLs())
	assert.Len(t, res.Skipped, 2)
}

func TestAssemble_TruncatesOversizedPageAtParagraph(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph is much longer than the rest\n"
	res := Assemble([]extract.PageResult{page("small", "tiny\n"), page("big", text), page("after", "tail\n")}, 40, 0)
	require.Len(t, res.Documents, 3)

	big := res.Documents[1]
	assert.Equal(t, "first paragraph here\n", string(big.Content))
	assert.Equal(t, len(text)-len("first paragraph here\n"), big.TruncatedBytes)
	assert.Equal(t, big.TruncatedBytes, res.TruncatedBytes)
	assert.LessOrEqual(t, big.Size(), 40)
	assert.Equal(t, []string{"after"}, res.Documents[2].URLs())
}

func TestAssemble_TruncatesAtWhitespaceNeverMidWord(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	res := Assemble([]extract.PageResult{page("w", text)}, 20, 0)
	require.Len(t, res.Documents, 1)
	got := string(res.Documents[0].Content)
	assert.LessOrEqual(t, len(got), 20)
	assert.True(t, strings.HasPrefix(text, got))
	assert.Equal(t, byte(' '), text[len(got)], "cut must land on a word boundary")
}

func TestAssemble_KeepsUnbreakablePageWhole(t *testing.T) {
	text := strings.Repeat("x", 64)
	res := Assemble([]extract.PageResult{page("blob", text)}, 16, 0)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, 64, res.Documents[0].Size())
	assert.Zero(t, res.TruncatedBytes)
}

func TestAssemble_MaxDocsExcludesRemainder(t *testing.T) {
	var pages []extract.PageResult
	for i := 0; i < 6; i++ {
		pages = append(pages, page(fmt.Sprintf("p%d", i), strings.Repeat("z", 30)+"\n"))
	}
	pages = append(pages, extract.PageResult{URL: "late-failed", Status: extract.StatusFailed})
	res := Assemble(pages, 62, 2)
	require.Len(t, res.Documents, 2)
	assert.Len(t, res.Excluded, 2)
	assert.Equal(t, "p4", res.Excluded[0].URL)
	assert.Len(t, res.Skipped, 1)
}

func TestAssemble_ByteConservationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"lorem", "ipsum", "dolor", "sit", "amet", "\n\n"}
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12) + 1
		var pages []extract.PageResult
		for i := 0; i < n; i++ {
			var b strings.Builder
			for w := rng.Intn(60); w > 0; w-- {
				b.WriteString(words[rng.Intn(len(words))])
				b.WriteByte(' ')
			}
			p := page(fmt.Sprintf("https://example.com/%d/%d", iter, i), b.String())
			if rng.Intn(6) == 0 {
				p.Status = extract.StatusFailed
			}
			pages = append(pages, p)
		}
		maxBytes := rng.Intn(200) + 20
		res := Assemble(pages, maxBytes, 0)

		in := 0
		for _, p := range pages {
			if p.Status != extract.StatusFailed {
				in += len(p.Text)
			}
		}
		out := 0
		failed := map[string]bool{}
		for _, p := range pages {
			if p.Status == extract.StatusFailed {
				failed[p.URL] = true
			}
		}
		for _, d := range res.Documents {
			out += d.Size()
			if d.Size() > maxBytes {
				require.Len(t, d.Provenance, 1, "only a lone oversized page may exceed the limit")
			}
			for _, s := range d.Provenance {
				require.False(t, failed[s.URL], "failed page %s reached a document", s.URL)
			}
			require.Equal(t, d.Size(), d.Provenance[len(d.Provenance)-1].End)
		}
		require.Equal(t, in-res.TruncatedBytes, out, "iteration %d", iter)
	}
}
