// Package compliance holds the fixed list of prohibited sources and decides
// whether a host may be scraped. The rule table is compiled into the binary
// and there is no API to change it at run time.
package compliance

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Category tags why a source is prohibited.
type Category string

const (
	CategorySocialMedia  Category = "social-media"
	CategoryECommerce    Category = "e-commerce"
	CategorySearchEngine Category = "search-engine"
	CategoryB2BDirectory Category = "b2b-directory"
	// CategoryMalformed is reported for hosts that cannot be matched safely.
	CategoryMalformed Category = "malformed"
)

// Rule matches a registrable domain and all of its subdomains.
type Rule struct {
	Pattern  string   `json:"pattern"`
	Category Category `json:"category"`
}

// Verdict is the outcome of classifying one host.
type Verdict struct {
	Host     string   `json:"host"`
	Allowed  bool     `json:"allowed"`
	Category Category `json:"category,omitempty"`
	// Rule is the matched pattern; empty for allowed or malformed hosts.
	Rule string `json:"rule,omitempty"`
}

// Blocked reports whether the verdict forbids scraping.
func (v Verdict) Blocked() bool { return !v.Allowed }

var rules = [...]Rule{
	{"instagram.com", CategorySocialMedia},
	{"facebook.com", CategorySocialMedia},
	{"fb.com", CategorySocialMedia},
	{"tiktok.com", CategorySocialMedia},
	{"linkedin.com", CategorySocialMedia},
	{"twitter.com", CategorySocialMedia},
	{"x.com", CategorySocialMedia},
	{"youtube.com", CategorySocialMedia},
	{"youtu.be", CategorySocialMedia},

	{"amazon.com", CategoryECommerce},
	{"amazon.co.uk", CategoryECommerce},
	{"amazon.de", CategoryECommerce},
	{"amazon.fr", CategoryECommerce},
	{"amazon.it", CategoryECommerce},
	{"amazon.es", CategoryECommerce},
	{"amazon.ca", CategoryECommerce},
	{"amazon.co.jp", CategoryECommerce},
	{"amazon.in", CategoryECommerce},
	{"amazon.com.au", CategoryECommerce},
	{"amzn.to", CategoryECommerce},

	{"google.com", CategorySearchEngine},
	{"bing.com", CategorySearchEngine},
	{"duckduckgo.com", CategorySearchEngine},

	{"apollo.io", CategoryB2BDirectory},
}

// backendPatterns are substrings that mark a scraping backend as built for a
// prohibited platform, independent of the target being scraped.
var backendPatterns = [...]struct {
	needle   string
	category Category
}{
	{"instagram", CategorySocialMedia},
	{"facebook", CategorySocialMedia},
	{"tiktok", CategorySocialMedia},
	{"linkedin", CategorySocialMedia},
	{"twitter", CategorySocialMedia},
	{"x-scraper", CategorySocialMedia},
	{"youtube", CategorySocialMedia},
	{"amazon", CategoryECommerce},
	{"amz-", CategoryECommerce},
	{"google-maps", CategorySearchEngine},
	{"google-search", CategorySearchEngine},
	{"google-trends", CategorySearchEngine},
	{"apollo", CategoryB2BDirectory},
}

// Filter classifies hosts against the built-in rule table. The zero value is
// ready to use and safe for concurrent use.
type Filter struct{}

// Default is the process-wide filter.
var Default = Filter{}

// Rules returns a copy of the rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules[:])
	return out
}

// Classify returns whether host may be scraped. Matching is case-insensitive
// and covers the listed domain and every subdomain of it. A host that cannot
// be normalized is blocked.
func (Filter) Classify(host string) Verdict {
	h, ok := normalizeHost(host)
	if !ok {
		return Verdict{Host: host, Category: CategoryMalformed}
	}
	for _, r := range rules {
		if h == r.Pattern || strings.HasSuffix(h, "."+r.Pattern) {
			return Verdict{Host: h, Category: r.Category, Rule: r.Pattern}
		}
	}
	return Verdict{Host: h, Allowed: true}
}

// ClassifyURL parses raw and classifies its host. Anything other than an
// absolute http(s) URL with a host is blocked.
func (f Filter) ClassifyURL(raw string) Verdict {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil || u.Host == "" {
		return Verdict{Host: raw, Category: CategoryMalformed}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Verdict{Host: u.Host, Category: CategoryMalformed}
	}
	if u.User != nil {
		return Verdict{Host: u.Host, Category: CategoryMalformed}
	}
	return f.Classify(u.Host)
}

// ClassifyBackend reports whether a scraping backend is dedicated to a
// prohibited platform, judged by its identifier and display name.
func (Filter) ClassifyBackend(id, name string) Verdict {
	hay := strings.ToLower(id + " " + name)
	for _, p := range backendPatterns {
		if strings.Contains(hay, p.needle) {
			return Verdict{Host: id, Category: p.category, Rule: p.needle}
		}
	}
	return Verdict{Host: id, Allowed: true}
}

// normalizeHost lower-cases host, strips a port and a trailing dot, and
// checks every label. IP literals are accepted as-is.
func normalizeHost(host string) (string, bool) {
	h := strings.TrimSpace(host)
	if h == "" || h != host {
		return "", false
	}
	if strings.ContainsAny(h, "/?#@\\ ") {
		return "", false
	}
	if hp, port, err := net.SplitHostPort(h); err == nil {
		if port == "" {
			return "", false
		}
		h = hp
	}
	h = strings.TrimPrefix(strings.TrimSuffix(h, "]"), "[")
	if ip := net.ParseIP(h); ip != nil {
		return ip.String(), true
	}
	h = strings.ToLower(strings.TrimSuffix(h, "."))
	// Internationalized names are compared in their punycode form.
	a, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", false
	}
	h = a
	if h == "" || len(h) > 253 {
		return "", false
	}
	for _, label := range strings.Split(h, ".") {
		if !validLabel(label) {
			return "", false
		}
	}
	return h, true
}

func validLabel(l string) bool {
	if l == "" || len(l) > 63 {
		return false
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for i := 0; i < len(l); i++ {
		c := l[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
