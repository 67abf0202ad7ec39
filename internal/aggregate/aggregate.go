// Package aggregate merges the pages a backend returned into one list with a
// single entry per canonical URL.
package aggregate

import (
	"net/url"
	"strings"

	"github.com/hyperifyio/webcorpus/internal/scrape"
)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid", "mc_cid", "mc_eid"}

// MergePages canonicalizes page URLs, drops tracking parameters and removes
// duplicates while keeping first-seen order. When a URL repeats, a page with
// a payload replaces an earlier empty one. Pages with unparsable URLs are
// kept as they are. The second return value counts removed duplicates.
func MergePages(groups ...[]scrape.RawPage) ([]scrape.RawPage, int) {
	index := map[string]int{}
	out := make([]scrape.RawPage, 0, 64)
	dupes := 0
	for _, g := range groups {
		for _, p := range g {
			if p.URL == "" {
				continue
			}
			u, err := url.Parse(p.URL)
			if err != nil || u.Host == "" {
				out = append(out, p)
				continue
			}
			key := Canonical(u)
			p.URL = key
			if i, ok := index[key]; ok {
				dupes++
				if len(out[i].Payload) == 0 && len(p.Payload) > 0 {
					out[i] = p
				}
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out, dupes
}

// Canonical returns u without fragment or tracking parameters, with a
// lowercase scheme and host and without a trailing slash on non-root paths.
func Canonical(u *url.URL) string {
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
	if c.RawQuery != "" {
		q := c.Query()
		for _, p := range trackingParams {
			q.Del(p)
		}
		c.RawQuery = q.Encode()
	}
	return c.String()
}
