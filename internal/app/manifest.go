package app

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// manifestEntry is a compact record of one assembled document.
type manifestEntry struct {
	Index           int      `json:"index"`
	Name            string   `json:"name"`
	SHA256          string   `json:"sha256"`
	Bytes           int      `json:"bytes"`
	Tokens          int      `json:"tokens"`
	Pages           []string `json:"pages"`
	Uploaded        bool     `json:"uploaded"`
	StoreDocumentID string   `json:"store_document_id,omitempty"`
}

// manifestMeta captures high-level run details that aid reproducibility.
type manifestMeta struct {
	RunID         string    `json:"run_id"`
	Target        string    `json:"target"`
	CorpusName    string    `json:"corpus_name"`
	Backend       string    `json:"backend"`
	StoreType     string    `json:"store_type"`
	StoreID       string    `json:"store_id"`
	DocumentCount int       `json:"document_count"`
	FilesIndexed  int       `json:"files_indexed"`
	HTTPCache     bool      `json:"http_cache"`
	Version       string    `json:"version"`
	GeneratedAt   time.Time `json:"generated_at"`
}

func buildManifestMeta(cfg Config, s pipeline.Summary) manifestMeta {
	return manifestMeta{
		RunID:         s.RunID,
		Target:        s.Target,
		CorpusName:    s.CorpusName,
		Backend:       s.BackendUsed,
		StoreType:     s.StoreType,
		StoreID:       s.StoreID,
		DocumentCount: len(s.Documents),
		FilesIndexed:  s.FilesIndexed,
		HTTPCache:     strings.TrimSpace(cfg.CacheDir) != "",
		Version:       BuildVersion,
		GeneratedAt:   s.FinishedAt,
	}
}

// buildManifestEntries lists every assembled document in upload order,
// including the ones that failed to upload.
func buildManifestEntries(s pipeline.Summary) []manifestEntry {
	out := make([]manifestEntry, 0, len(s.Documents))
	for i, d := range s.Documents {
		out = append(out, manifestEntry{
			Index:           i + 1,
			Name:            d.Name,
			SHA256:          d.SHA256,
			Bytes:           d.Bytes,
			Tokens:          d.Tokens,
			Pages:           d.Pages,
			Uploaded:        d.Uploaded,
			StoreDocumentID: d.StoreDocumentID,
		})
	}
	return out
}

// appendEmbeddedManifest appends a compact Markdown manifest section listing
// each document with its digest and page count.
func appendEmbeddedManifest(markdown string, meta manifestMeta, entries []manifestEntry) string {
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n## Manifest\n\n")
	b.WriteString("- Run: ")
	b.WriteString(meta.RunID)
	b.WriteString("\n- Backend: ")
	b.WriteString(meta.Backend)
	b.WriteString("\n- Store: ")
	b.WriteString(meta.StoreType)
	b.WriteString("\n- Documents: ")
	b.WriteString(strconv.Itoa(meta.DocumentCount))
	b.WriteString("\n- HTTP cache: ")
	b.WriteString(strconv.FormatBool(meta.HTTPCache))
	b.WriteString("\n- Generated: ")
	b.WriteString(meta.GeneratedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n\n")

	for _, e := range entries {
		b.WriteString(strconv.Itoa(e.Index))
		b.WriteString(". ")
		b.WriteString(e.Name)
		b.WriteString(": sha256=")
		b.WriteString(e.SHA256)
		b.WriteString("; pages=")
		b.WriteString(strconv.Itoa(len(e.Pages)))
		if !e.Uploaded {
			b.WriteString("; not uploaded")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// marshalManifestJSON encodes a machine-readable sidecar manifest.
func marshalManifestJSON(meta manifestMeta, entries []manifestEntry) ([]byte, error) {
	payload := struct {
		Meta      manifestMeta    `json:"meta"`
		Documents []manifestEntry `json:"documents"`
	}{Meta: meta, Documents: entries}
	return json.MarshalIndent(payload, "", "  ")
}
