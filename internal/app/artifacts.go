package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// Artifacts lists the files a run wrote. Empty fields were not written.
type Artifacts struct {
	Dir      string `json:"dir"`
	Summary  string `json:"summary"`
	Guide    string `json:"guide,omitempty"`
	PDF      string `json:"pdf,omitempty"`
	Manifest string `json:"manifest,omitempty"`
	Tarball  string `json:"tarball,omitempty"`
}

// exportArtifacts writes the run bundle under dir: the query guide with its
// embedded manifest and footer, an optional PDF copy, manifest.json,
// summary.json and SHA256SUMS, plus an optional tar.gz next to dir.
// summary.json comes after the guide so that it records the guide's path.
func exportArtifacts(cfg Config, dir string, s *pipeline.Summary, guide string) (Artifacts, error) {
	out := Artifacts{Dir: dir}
	b, err := newBundle(dir)
	if err != nil {
		return out, err
	}

	meta := buildManifestMeta(cfg, *s)
	entries := buildManifestEntries(*s)

	if strings.TrimSpace(guide) != "" {
		md := appendReproFooter(appendEmbeddedManifest(guide, meta, entries), *s, meta.HTTPCache)
		if out.Guide, err = b.put("query-guide.md", []byte(md)); err != nil {
			return out, err
		}
		s.QueryGuide = out.Guide
		if cfg.EnablePDF {
			// The Markdown guide is authoritative; a PDF failure is only logged.
			if pdf, err := renderPDF(md); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("pdf export failed")
			} else if out.PDF, err = b.put("query-guide.pdf", pdf); err != nil {
				return out, err
			}
		}
	}

	if len(entries) > 0 {
		data, err := marshalManifestJSON(meta, entries)
		if err != nil {
			return out, fmt.Errorf("encode manifest: %w", err)
		}
		if out.Manifest, err = b.put("manifest.json", data); err != nil {
			return out, err
		}
	}

	summary, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return out, fmt.Errorf("encode summary: %w", err)
	}
	if out.Summary, err = b.put("summary.json", append(summary, '\n')); err != nil {
		return out, err
	}
	if _, err := b.put(checksumFile, b.checksums()); err != nil {
		return out, err
	}

	if cfg.OutTar {
		out.Tarball = strings.TrimSuffix(dir, string(os.PathSeparator)) + ".tar.gz"
		if err := b.archive(out.Tarball, s.FinishedAt); err != nil {
			return out, fmt.Errorf("tar bundle: %w", err)
		}
	}
	return out, nil
}

const checksumFile = "SHA256SUMS"

// bundle tracks the files written to one output directory.
type bundle struct {
	dir   string
	files map[string][]byte
}

func newBundle(dir string) (*bundle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir output dir: %w", err)
	}
	return &bundle{dir: dir, files: make(map[string][]byte)}, nil
}

// put writes name and returns its path.
func (b *bundle) put(name string, data []byte) (string, error) {
	p := filepath.Join(b.dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	b.files[name] = data
	return p, nil
}

func (b *bundle) names() []string {
	names := make([]string, 0, len(b.files))
	for n := range b.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// checksums renders sha256sum(1) output for every file but the checksum
// file itself.
func (b *bundle) checksums() []byte {
	var buf bytes.Buffer
	for _, n := range b.names() {
		if n == checksumFile {
			continue
		}
		sum := sha256.Sum256(b.files[n])
		fmt.Fprintf(&buf, "%s  %s\n", hex.EncodeToString(sum[:]), n)
	}
	return buf.Bytes()
}

// archive writes the bundle as a gzipped tar with entries under the
// directory's base name. Entries are sorted and stamped with modTime so the
// archive of a given run is reproducible.
func (b *bundle) archive(path string, modTime time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if modTime.IsZero() {
		modTime = time.Unix(0, 0)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	base := filepath.Base(b.dir)
	for _, n := range b.names() {
		data := b.files[n]
		hdr := &tar.Header{
			Name:    base + "/" + n,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: modTime.UTC(),
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
