package app

import (
	"strconv"
	"strings"

	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// appendReproFooter appends a minimal, deterministic footer that records
// what produced the corpus: tool version, run id, backend, store and
// whether the HTTP cache was active.
func appendReproFooter(markdown string, s pipeline.Summary, httpCacheActive bool) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(markdown, "\n"))
	b.WriteString("\n\n---\n")
	b.WriteString("Reproducibility: ")
	b.WriteString("version=")
	b.WriteString(BuildVersion)
	b.WriteString("; run=")
	b.WriteString(s.RunID)
	b.WriteString("; backend=")
	b.WriteString(s.BackendUsed)
	b.WriteString("; fallbacks=")
	b.WriteString(strconv.Itoa(s.BackendFallbacks))
	b.WriteString("; store=")
	b.WriteString(s.StoreType)
	b.WriteString("; http_cache=")
	b.WriteString(strconv.FormatBool(httpCacheActive))
	b.WriteString("\n")
	return b.String()
}
