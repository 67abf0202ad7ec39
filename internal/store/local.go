package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes files under Dir/<corpus slug>/. It backs dry runs and tests.
type Local struct {
	Dir string
}

func (l *Local) Name() string        { return "local-directory" }
func (l *Local) Persistence() string { return "local filesystem" }

func (l *Local) Create(ctx context.Context, corpusName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(l.Dir, Slug(corpusName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create store dir: %w", err)
	}
	return dir, nil
}

func (l *Local) Upload(ctx context.Context, storeID string, f File) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) {
		return Receipt{}, fmt.Errorf("invalid file name %q", f.Name)
	}
	p := filepath.Join(storeID, name)
	if err := os.WriteFile(p, f.Body, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("write %s: %w", name, err)
	}
	meta, err := json.MarshalIndent(map[string]any{
		"display_name": f.DisplayName,
		"mime_type":    f.MIMEType,
		"metadata":     f.Metadata,
	}, "", "  ")
	if err != nil {
		return Receipt{}, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(p+".meta.json", meta, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("write metadata: %w", err)
	}
	return Receipt{DocumentID: p, Name: name, Bytes: len(f.Body)}, nil
}
