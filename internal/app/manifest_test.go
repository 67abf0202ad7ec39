package app

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

func sampleSummary() pipeline.Summary {
	return pipeline.Summary{
		RunID:       "run-1",
		Status:      "DONE",
		Target:      "https://docs.example.com/",
		CorpusName:  "Example Docs",
		BackendUsed: "direct",
		StoreType:   "local-directory",
		StoreID:     "corpus/example-docs",
		FinishedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Documents: []pipeline.DocumentInfo{
			{ID: "doc-0001", Name: "doc-0001.md", Pages: []string{"https://docs.example.com/", "https://docs.example.com/a"}, Bytes: 900, SHA256: "aa11", Uploaded: true, StoreDocumentID: "corpus/example-docs/doc-0001.md"},
			{ID: "doc-0002", Name: "doc-0002.md", Pages: []string{"https://docs.example.com/b"}, Bytes: 400, SHA256: "bb22", Error: "quota"},
		},
		FilesIndexed: 2,
	}
}

func TestBuildManifestEntries_KeepsOrderAndFailures(t *testing.T) {
	entries := buildManifestEntries(sampleSummary())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries; got %d", len(entries))
	}
	if entries[0].Index != 1 || entries[1].Index != 2 {
		t.Fatalf("unexpected indices: %+v", entries)
	}
	if !entries[0].Uploaded || entries[1].Uploaded {
		t.Fatalf("upload flags not carried: %+v", entries)
	}
	if len(entries[0].Pages) != 2 {
		t.Fatalf("pages not carried: %+v", entries[0])
	}
}

func TestAppendEmbeddedManifest_AppendsReadableSection(t *testing.T) {
	s := sampleSummary()
	meta := buildManifestMeta(Config{CacheDir: ".cache"}, s)
	out := appendEmbeddedManifest("# Guide\n\nBody\n", meta, buildManifestEntries(s))
	if !strings.Contains(out, "## Manifest") {
		t.Fatalf("expected a Manifest section")
	}
	if !strings.Contains(out, "- Run: run-1") || !strings.Contains(out, "- HTTP cache: true") {
		t.Fatalf("expected header fields present:\n%s", out)
	}
	if !strings.Contains(out, "1. doc-0001.md: sha256=aa11; pages=2\n") {
		t.Fatalf("expected entry line; got:\n%s", out)
	}
	if !strings.Contains(out, "2. doc-0002.md: sha256=bb22; pages=1; not uploaded\n") {
		t.Fatalf("expected failed entry marked; got:\n%s", out)
	}
	if !strings.Contains(out, "- Generated: 2026-01-02T03:04:05Z") {
		t.Fatalf("expected generated timestamp")
	}
}

func TestMarshalManifestJSON(t *testing.T) {
	s := sampleSummary()
	b, err := marshalManifestJSON(buildManifestMeta(Config{}, s), buildManifestEntries(s))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Meta      manifestMeta    `json:"meta"`
		Documents []manifestEntry `json:"documents"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Meta.DocumentCount != 2 || got.Meta.FilesIndexed != 2 || got.Meta.HTTPCache {
		t.Fatalf("unexpected meta %+v", got.Meta)
	}
	if got.Documents[0].StoreDocumentID == "" {
		t.Fatalf("store document id missing")
	}
}
