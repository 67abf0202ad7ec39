package app

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var mdLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// pdfWriter lays out Markdown line by line. It understands headings, fenced
// code, rules, bullets and links, which is all a query guide uses.
type pdfWriter struct {
	doc  *gofpdf.Fpdf
	tr   func(string) string
	code bool
}

func (w *pdfWriter) body()             { w.doc.SetFont("Helvetica", "", 11) }
func (w *pdfWriter) mono()             { w.doc.SetFont("Courier", "", 9) }
func (w *pdfWriter) bold(size float64) { w.doc.SetFont("Helvetica", "B", size) }

// renderPDF returns an A4 PDF of markdown. Core fonts are cp1252, so text
// goes through gofpdf's translator to keep accented titles.
func renderPDF(markdown string) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	w := &pdfWriter{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}
	w.body()
	doc.AddPage()

	sc := bufio.NewScanner(strings.NewReader(markdown))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		w.line(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) line(raw string) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```"):
		w.code = !w.code
		if w.code {
			w.mono()
		} else {
			w.body()
			w.doc.Ln(3)
		}
	case w.code:
		w.doc.MultiCell(0, 4, w.tr(strings.ReplaceAll(raw, "\t", "    ")), "", "L", false)
	case s == "":
		w.doc.Ln(4)
	case s == "---":
		y := w.doc.GetY()
		w.doc.Line(10, y, 200, y)
		w.doc.Ln(2)
	case strings.HasPrefix(s, "#"):
		w.heading(s)
	default:
		s = strings.NewReplacer("**", "", "`", "").Replace(s)
		if rest, ok := strings.CutPrefix(s, "- "); ok {
			s = "  • " + rest
		}
		w.paragraph(s)
	}
}

func (w *pdfWriter) heading(s string) {
	text := strings.TrimLeft(s, "#")
	level := len(s) - len(text)
	if text = strings.TrimSpace(text); text == "" {
		return
	}
	size := 11.5
	switch level {
	case 1:
		size = 16
	case 2:
		size = 13
	}
	w.bold(size)
	w.doc.CellFormat(0, 8, w.tr(text), "", 1, "L", false, 0, "")
	w.body()
}

// paragraph writes s, turning Markdown links and a bare http(s) URL into
// clickable links.
func (w *pdfWriter) paragraph(s string) {
	links := mdLinkRe.FindAllStringSubmatchIndex(s, -1)
	if len(links) == 0 {
		u := bareURL(s)
		if u == "" {
			w.doc.MultiCell(0, 5, w.tr(s), "", "L", false)
			return
		}
		before, after, _ := strings.Cut(s, u)
		w.doc.Write(5, w.tr(before))
		w.doc.WriteLinkString(5, u, u)
		w.doc.Write(5, w.tr(after))
		w.doc.Ln(6)
		return
	}
	pos := 0
	for _, m := range links {
		w.doc.Write(5, w.tr(s[pos:m[0]]))
		w.doc.WriteLinkString(5, w.tr(s[m[2]:m[3]]), s[m[4]:m[5]])
		pos = m[1]
	}
	w.doc.Write(5, w.tr(s[pos:]))
	w.doc.Ln(6)
}

func bareURL(s string) string {
	for _, f := range strings.Fields(s) {
		if strings.HasPrefix(f, "https://") || strings.HasPrefix(f, "http://") {
			return f
		}
	}
	return ""
}
