// Package cache keeps fetched page bodies and robots.txt files on disk so
// repeat crawls of the same site can revalidate instead of refetching.
//
// Each URL maps to two files in a shard directory named after the first two
// hex digits of sha256(url): <key>.json holds the validators and <key>.body
// the raw response.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	metaSuffix = ".json"
	bodySuffix = ".body"
)

// Entry describes one cached response.
type Entry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Size         int64     `json:"size"`
	StoredAt     time.Time `json:"stored_at"`
}

// Revalidatable reports whether a conditional request can be built from e.
func (e Entry) Revalidatable() bool { return e.ETag != "" || e.LastModified != "" }

// Store is an on-disk response cache. A nil *Store is a valid, disabled
// cache: lookups miss and writes are dropped.
type Store struct {
	Dir string
	// StrictPerms creates directories 0700 and files 0600.
	StrictPerms bool

	now func() time.Time
}

// Open returns a Store rooted at dir, creating the directory.
func Open(dir string, strictPerms bool) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache: empty directory")
	}
	s := &Store{Dir: dir, StrictPerms: strictPerms}
	if err := s.mkdir(dir); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Store) dirMode() os.FileMode {
	if s.StrictPerms {
		return 0o700
	}
	return 0o755
}

func (s *Store) fileMode() os.FileMode {
	if s.StrictPerms {
		return 0o600
	}
	return 0o644
}

// mkdir creates dir and, in strict mode, tightens a pre-existing one.
func (s *Store) mkdir(dir string) error {
	if err := os.MkdirAll(dir, s.dirMode()); err != nil {
		return fmt.Errorf("cache: create %s: %w", dir, err)
	}
	if s.StrictPerms {
		if info, err := os.Stat(dir); err == nil && info.Mode().Perm() != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	return nil
}

// paths returns the shard directory and the common file prefix for url.
func (s *Store) paths(url string) (string, string) {
	sum := sha256.Sum256([]byte(url))
	key := hex.EncodeToString(sum[:])
	shard := filepath.Join(s.Dir, key[:2])
	return shard, filepath.Join(shard, key)
}

func (s *Store) enabled() bool { return s != nil && s.Dir != "" }

// Lookup returns the metadata stored for url.
func (s *Store) Lookup(_ context.Context, url string) (Entry, bool) {
	if !s.enabled() {
		return Entry{}, false
	}
	_, base := s.paths(url)
	b, err := os.ReadFile(base + metaSuffix)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || e.URL != url {
		return Entry{}, false
	}
	return e, true
}

// Body returns the stored body of url and marks the entry as recently used.
func (s *Store) Body(_ context.Context, url string) ([]byte, error) {
	if !s.enabled() {
		return nil, errors.New("cache: disabled")
	}
	_, base := s.paths(url)
	b, err := os.ReadFile(base + bodySuffix)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	_ = os.Chtimes(base+bodySuffix, now, now)
	return b, nil
}

// Put stores body for url with the validators of e. The body is written
// first and the metadata renamed into place, so validators never refer to a
// missing body.
func (s *Store) Put(_ context.Context, url string, e Entry, body []byte) error {
	if !s.enabled() {
		return nil
	}
	shard, base := s.paths(url)
	if err := s.mkdir(shard); err != nil {
		return err
	}
	now := s.clock()
	if err := os.WriteFile(base+bodySuffix, body, s.fileMode()); err != nil {
		return fmt.Errorf("cache: write body: %w", err)
	}
	_ = os.Chtimes(base+bodySuffix, now, now)

	e.URL = url
	e.Size = int64(len(body))
	e.StoredAt = now.UTC()
	meta, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	tmp := base + metaSuffix + ".tmp"
	if err := os.WriteFile(tmp, meta, s.fileMode()); err != nil {
		return fmt.Errorf("cache: write entry: %w", err)
	}
	return os.Rename(tmp, base+metaSuffix)
}

// remove deletes both files of the entry at base and its shard directory
// once empty.
func remove(base string) {
	_ = os.Remove(base + metaSuffix)
	_ = os.Remove(base + bodySuffix)
	_ = os.Remove(filepath.Dir(base))
}
