package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestDeriveRunOutputDir_StableAndDistinct(t *testing.T) {
	a := deriveRunOutputDir(Config{OutDir: "out", CorpusName: "Example Docs", Target: "https://docs.example.com/"})
	b := deriveRunOutputDir(Config{OutDir: "out", CorpusName: "Example Docs", Target: "HTTPS://DOCS.EXAMPLE.COM/ "})
	c := deriveRunOutputDir(Config{OutDir: "out", CorpusName: "Example Docs", Target: "https://other.example.com/"})
	if a != b {
		t.Fatalf("expected stable path, got %s and %s", a, b)
	}
	if a == c {
		t.Fatalf("different targets must not share a directory")
	}
	if !strings.HasPrefix(a, filepath.Join("out", "example-docs-")) || len(filepath.Base(a)) != len("example-docs-")+12 {
		t.Fatalf("unexpected dir %s", a)
	}
	if d := deriveRunOutputDir(Config{CorpusName: "x", Target: "https://x"}); !strings.HasPrefix(d, DefaultOutDir+string(filepath.Separator)) {
		t.Fatalf("empty OutDir should fall back to %s, got %s", DefaultOutDir, d)
	}
}

func TestExportArtifacts_WritesBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	s := sampleSummary()
	art, err := exportArtifacts(Config{EnablePDF: true, OutTar: true}, dir, &s, "# Query Guide: Example Docs\n\nSee https://ai.google.dev/api/file-search\n")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if s.QueryGuide != art.Guide {
		t.Fatalf("summary should point at the guide")
	}

	var summary map[string]any
	b, err := os.ReadFile(art.Summary)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		t.Fatalf("summary.json: %v", err)
	}
	if summary["query_guide"] != art.Guide {
		t.Fatalf("summary.json query_guide = %v", summary["query_guide"])
	}

	pdf, err := os.ReadFile(art.PDF)
	if err != nil || !strings.HasPrefix(string(pdf), "%PDF") {
		t.Fatalf("expected a PDF at %s (err=%v)", art.PDF, err)
	}

	sums, err := os.ReadFile(filepath.Join(dir, "SHA256SUMS"))
	if err != nil {
		t.Fatalf("read sums: %v", err)
	}
	for _, name := range []string{"manifest.json", "query-guide.md", "query-guide.pdf", "summary.json"} {
		if !strings.Contains(string(sums), "  "+name+"\n") {
			t.Fatalf("SHA256SUMS missing %s:\n%s", name, sums)
		}
	}

	f, err := os.Open(art.Tarball)
	if err != nil {
		t.Fatalf("open tarball: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		names = append(names, h.Name)
	}
	sort.Strings(names)
	want := []string{"bundle/SHA256SUMS", "bundle/manifest.json", "bundle/query-guide.md", "bundle/query-guide.pdf", "bundle/summary.json"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("tar entries = %v, want %v", names, want)
	}
}

func TestExportArtifacts_FailedRunWritesOnlySummary(t *testing.T) {
	dir := t.TempDir()
	s := sampleSummary()
	s.Status = "FAILED"
	s.Documents = nil
	art, err := exportArtifacts(Config{EnablePDF: true}, dir, &s, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if art.Guide != "" || art.PDF != "" || art.Manifest != "" || art.Tarball != "" {
		t.Fatalf("unexpected artifacts %+v", art)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("expected summary.json and SHA256SUMS, got %v", entries)
	}
}

func TestRenderPDF_HandlesCodeAndUnicode(t *testing.T) {
	md := "# Query Guide: Café Docs\n\n## Method 1\n\n- step one with [docs](https://ai.google.dev) and [api](https://ai.google.dev/api)\n\n```go\n\tfmt.Println(\"hi\")\n```\n\n---\nplain text\n#\n"
	pdf, err := renderPDF(md)
	if err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("not a pdf: %q", pdf[:min(len(pdf), 16)])
	}
}

func TestExportArtifacts_ChecksumsMatchFiles(t *testing.T) {
	dir := t.TempDir()
	s := sampleSummary()
	if _, err := exportArtifacts(Config{}, dir, &s, "# Query Guide: Example Docs\n"); err != nil {
		t.Fatalf("export: %v", err)
	}
	sums, err := os.ReadFile(filepath.Join(dir, "SHA256SUMS"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(sums)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected guide, manifest and summary sums:\n%s", sums)
	}
	for _, line := range lines {
		sum, name, ok := strings.Cut(line, "  ")
		if !ok {
			t.Fatalf("malformed line %q", line)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if got := sha256.Sum256(data); hex.EncodeToString(got[:]) != sum {
			t.Fatalf("checksum mismatch for %s", name)
		}
	}
}
