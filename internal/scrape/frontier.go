package scrape

import (
	"net/url"
	"path"
	"strings"
)

// frontier is a BFS queue with URL deduplication.
type frontier struct {
	items []string
	seen  map[string]bool
	idx   int
}

func newFrontier() *frontier {
	return &frontier{seen: make(map[string]bool)}
}

// add enqueues u unless it was seen before. It reports whether u was new.
func (f *frontier) add(u string) bool {
	if f.seen[u] {
		return false
	}
	f.seen[u] = true
	f.items = append(f.items, u)
	return true
}

func (f *frontier) hasNext() bool { return f.idx < len(f.items) }

func (f *frontier) next() string {
	u := f.items[f.idx]
	f.idx++
	return u
}

// staticExtensions are never queued.
var staticExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".mjs": true, ".json": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp4": true, ".webm": true, ".mp3": true, ".wav": true,
	".zip": true, ".tar": true, ".gz": true, ".tgz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".exe": true, ".dmg": true,
}

func isStaticAsset(u *url.URL) bool {
	return staticExtensions[strings.ToLower(path.Ext(u.Path))]
}

// normalizeURL strips the fragment and a trailing slash (root excepted) and
// lowercases scheme and host, so equivalent links dedupe.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Path != "/" {
		c.Path = strings.TrimSuffix(c.Path, "/")
		c.RawPath = ""
	}
	return c.String()
}

// resolveLink resolves href against base, dropping non-navigational links.
func resolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"mailto:", "javascript:", "tel:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return nil, false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}
