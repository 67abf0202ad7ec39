package cache

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Policy bounds the cache. Zero fields are not enforced.
type Policy struct {
	// Clear empties the cache before anything else.
	Clear      bool
	MaxAge     time.Duration
	MaxBytes   int64
	MaxEntries int
}

// Report counts what Maintain removed.
type Report struct {
	Cleared bool
	Expired int
	Evicted int
}

// Maintain applies p: clear, then drop entries stored longer than MaxAge
// ago, then evict least recently used entries until both the entry and byte
// limits hold. Recency is the body's mtime, bumped by Body.
func (s *Store) Maintain(p Policy) (Report, error) {
	var rep Report
	if !s.enabled() {
		return rep, nil
	}
	if p.Clear {
		if err := os.RemoveAll(s.Dir); err != nil {
			return rep, err
		}
		rep.Cleared = true
		return rep, s.mkdir(s.Dir)
	}
	entries, err := s.scan()
	if err != nil {
		return rep, err
	}
	if p.MaxAge > 0 {
		cutoff := s.clock().Add(-p.MaxAge)
		kept := entries[:0]
		for _, e := range entries {
			if e.stored.Before(cutoff) {
				remove(e.base)
				rep.Expired++
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}
	rep.Evicted = evict(entries, p.MaxBytes, p.MaxEntries)
	return rep, nil
}

type diskEntry struct {
	base   string
	size   int64
	used   time.Time
	stored time.Time
}

// scan lists the entries that have a body. Metadata that cannot be decoded
// leaves stored as the zero time, so such entries expire first.
func (s *Store) scan() ([]diskEntry, error) {
	var out []diskEntry
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, bodySuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		e := diskEntry{base: strings.TrimSuffix(path, bodySuffix), size: info.Size(), used: info.ModTime()}
		if b, err := os.ReadFile(e.base + metaSuffix); err == nil {
			var meta Entry
			if json.Unmarshal(b, &meta) == nil {
				e.stored = meta.StoredAt
			}
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func evict(entries []diskEntry, maxBytes int64, maxEntries int) int {
	var total int64
	for _, e := range entries {
		total += e.size
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].used.Before(entries[j].used) })
	evicted := 0
	for _, e := range entries {
		overCount := maxEntries > 0 && len(entries)-evicted > maxEntries
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		remove(e.base)
		total -= e.size
		evicted++
	}
	return evicted
}
