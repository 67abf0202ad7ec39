package app

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/hyperifyio/webcorpus/internal/store"
)

// deriveRunOutputDir returns a stable artifacts directory for a corpus and
// target. The name uses the slugified corpus name and a short hash of the
// target so that two corpora with the same name never share a directory.
func deriveRunOutputDir(cfg Config) string {
	root := strings.TrimSpace(cfg.OutDir)
	if root == "" {
		root = DefaultOutDir
	}
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(cfg.Target))))
	// Use a short prefix of the hash for readability while remaining stable.
	short := hex.EncodeToString(h[:])[:12]
	return filepath.Join(root, store.Slug(cfg.CorpusName)+"-"+short)
}
