// Package robots fetches and evaluates robots.txt for the direct crawler.
// Rules are kept in memory per origin and revalidated against the on-disk
// HTTP cache with ETag/Last-Modified.
package robots

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webcorpus/internal/cache"
)

// Source tells where a Rules value came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceMemory
	SourceCache304
)

func (s Source) String() string {
	switch s {
	case SourceMemory:
		return "memory"
	case SourceCache304:
		return "cache-304"
	default:
		return "network"
	}
}

// Rules is a parsed robots.txt.
type Rules struct {
	Groups []Group
	// Sitemaps lists the absolute URLs of Sitemap directives.
	Sitemaps []string
	// DenyAll is set when the file could not be read for reasons that
	// require assuming a full disallow (server errors, auth, timeouts).
	DenyAll bool
}

// Group is one User-agent block.
type Group struct {
	Agents     []string
	Allow      []string
	Disallow   []string
	CrawlDelay *time.Duration
}

func (g Group) empty() bool {
	return len(g.Agents) == 0 && len(g.Allow) == 0 && len(g.Disallow) == 0 && g.CrawlDelay == nil
}

func (g Group) hasDirectives() bool {
	return len(g.Allow) > 0 || len(g.Disallow) > 0 || g.CrawlDelay != nil
}

// maxRobotsBytes caps the robots.txt body; the remainder is ignored.
const maxRobotsBytes = 512 << 10

const defaultEntryExpiry = 30 * time.Minute

// Manager answers robots.txt questions for the crawler. The zero value is
// usable; rules are fetched once per origin and remembered for EntryExpiry.
type Manager struct {
	HTTPClient *http.Client
	// Cache enables conditional revalidation; nil fetches every time the
	// memory entry expires.
	Cache       *cache.Store
	UserAgent   string
	EntryExpiry time.Duration
	// AllowPrivateHosts permits loopback and private network origins.
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	rules  Rules
	expiry time.Time
}

func (m *Manager) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now == nil {
		m.now = time.Now
	}
	return m.now()
}

func (m *Manager) remembered(key string) (Rules, bool) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.mem[key]
	if !ok || !now.Before(ent.expiry) {
		return Rules{}, false
	}
	return ent.rules, true
}

func (m *Manager) remember(key string, rules Rules) Rules {
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = defaultEntryExpiry
	}
	now := m.clock()
	m.mu.Lock()
	if m.mem == nil {
		m.mem = make(map[string]memEntry)
	}
	m.mem[key] = memEntry{rules: rules, expiry: now.Add(exp)}
	m.mu.Unlock()
	return rules
}

// Get returns the rules at robotsURL.
//
// A 404 or 410 yields empty rules (everything allowed). 401, 403, 5xx and
// network timeouts yield DenyAll rules and no error. Both outcomes are
// remembered until EntryExpiry.
func (m *Manager) Get(ctx context.Context, robotsURL string) (Rules, Source, error) {
	u, err := url.Parse(robotsURL)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Rules{}, SourceNetwork, fmt.Errorf("unsupported url scheme: %q", robotsURL)
	}
	if host := u.Hostname(); !m.AllowPrivateHosts && isLocalOrPrivateHost(host) {
		return Rules{}, SourceNetwork, fmt.Errorf("private host not allowed: %s", host)
	}
	if r, ok := m.remembered(robotsURL); ok {
		return r, SourceMemory, nil
	}

	resp, err := m.request(ctx, robotsURL)
	if err != nil {
		if ctx.Err() != nil {
			return Rules{}, SourceNetwork, ctx.Err()
		}
		if isTimeout(err) {
			log.Debug().Err(err).Str("url", robotsURL).Msg("robots timeout; assuming disallow")
			return m.remember(robotsURL, Rules{DenyAll: true}), SourceNetwork, nil
		}
		return Rules{}, SourceNetwork, err
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	switch {
	case status == http.StatusNotModified && m.Cache != nil:
		body, err := m.Cache.Body(ctx, robotsURL)
		if err != nil {
			return Rules{}, SourceCache304, fmt.Errorf("load cached robots: %w", err)
		}
		return m.remember(robotsURL, parse(string(body), u)), SourceCache304, nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return m.remember(robotsURL, Rules{}), SourceNetwork, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500:
		log.Debug().Int("status", status).Str("url", robotsURL).Msg("robots unavailable; assuming disallow")
		return m.remember(robotsURL, Rules{DenyAll: true}), SourceNetwork, nil
	case status < 200 || status > 299:
		return Rules{}, SourceNetwork, fmt.Errorf("unexpected status: %d", status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("read robots: %w", err)
	}
	entry := cache.Entry{ContentType: "text/plain", ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified")}
	if err := m.Cache.Put(ctx, robotsURL, entry, data); err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots not cached")
	}
	return m.remember(robotsURL, parse(string(data), u)), SourceNetwork, nil
}

// request issues a conditional GET when the cache holds validators.
func (m *Manager) request(ctx context.Context, robotsURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	if e, ok := m.Cache.Lookup(ctx, robotsURL); ok {
		if e.ETag != "" {
			req.Header.Set("If-None-Match", e.ETag)
		}
		if e.LastModified != "" {
			req.Header.Set("If-Modified-Since", e.LastModified)
		}
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return client.Do(req)
}

// robotsURLFor returns the robots.txt URL of pageURL's origin.
func robotsURLFor(pageURL string) (*url.URL, string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse page url: %w", err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("page url %q has no host", pageURL)
	}
	return u, (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String(), nil
}

// Allowed reports whether pageURL may be crawled by the manager's user agent,
// together with the crawl delay of the matching group (zero when unset).
// Lookup errors other than context cancellation allow the page; a robots
// endpoint that is broken without a server error does not stop the crawl.
func (m *Manager) Allowed(ctx context.Context, pageURL string) (bool, time.Duration, error) {
	u, robotsURL, err := robotsURLFor(pageURL)
	if err != nil {
		return false, 0, err
	}
	rules, _, err := m.Get(ctx, robotsURL)
	if err != nil {
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		log.Debug().Err(err).Str("robots", robotsURL).Msg("robots lookup failed; allowing")
		return true, 0, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	var delay time.Duration
	if d := rules.CrawlDelayFor(m.UserAgent); d != nil {
		delay = *d
	}
	return rules.IsAllowed(m.UserAgent, path), delay, nil
}

// Sitemaps returns the sitemap URLs declared in the robots.txt of pageURL's
// origin. Lookup failures yield nil.
func (m *Manager) Sitemaps(ctx context.Context, pageURL string) []string {
	_, robotsURL, err := robotsURLFor(pageURL)
	if err != nil {
		return nil
	}
	rules, _, err := m.Get(ctx, robotsURL)
	if err != nil {
		return nil
	}
	return rules.Sitemaps
}

// parse reads a robots.txt body. base resolves relative Sitemap values.
func parse(text string, base *url.URL) Rules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var rules Rules
	current := Group{}
	flush := func() {
		if !current.empty() {
			rules.Groups = append(rules.Groups, current)
		}
		current = Group{}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "user-agent", "useragent":
			if len(current.Agents) > 0 && current.hasDirectives() {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		case "crawl-delay", "crawldelay":
			if d, err := time.ParseDuration(val + "s"); val != "" && err == nil && d >= 0 {
				current.CrawlDelay = &d
			}
		case "sitemap":
			// Sitemap lines stand outside groups.
			if ref, err := url.Parse(val); err == nil && val != "" {
				if base != nil {
					ref = base.ResolveReference(ref)
				}
				if isHTTPScheme(ref) {
					rules.Sitemaps = append(rules.Sitemaps, ref.String())
				}
			}
		}
	}
	flush()
	return rules
}

// IsAllowed evaluates a path (with optional query) for userAgent.
//
// The most specific matching User-agent group is used, exact tokens beating
// "*". Within it the matching directive with the longest pattern (ignoring
// '*' and a trailing '$') wins; on a tie Allow beats Disallow. No match
// means allowed.
func (r Rules) IsAllowed(userAgent string, path string) bool {
	if r.DenyAll {
		return false
	}
	g, ok := r.groupFor(userAgent)
	if !ok {
		return true
	}
	best, allow := -1, true
	consider := func(patterns []string, isAllow bool) {
		for _, p := range patterns {
			if p == "" || !patternMatches(p, path) {
				continue
			}
			if s := specificity(p); s > best || (s == best && isAllow && !allow) {
				best, allow = s, isAllow
			}
		}
	}
	consider(g.Disallow, false)
	consider(g.Allow, true)
	return best == -1 || allow
}

// CrawlDelayFor returns the crawl delay of the group matching userAgent, or nil.
func (r Rules) CrawlDelayFor(userAgent string) *time.Duration {
	if g, ok := r.groupFor(userAgent); ok {
		return g.CrawlDelay
	}
	return nil
}

// groupFor picks the group whose agent token is the longest substring of
// userAgent; "*" scores zero. Ties keep the first group.
func (r Rules) groupFor(userAgent string) (Group, bool) {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	best, bestScore := -1, -1
	for i, g := range r.Groups {
		for _, a := range g.Agents {
			token := strings.ToLower(strings.TrimSpace(a))
			score := -1
			switch {
			case token == "*":
				score = 0
			case token != "" && strings.Contains(ua, token):
				score = len(token)
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 {
		return Group{}, false
	}
	return r.Groups[best], true
}

var patterns sync.Map // pattern -> *regexp.Regexp

// patternMatches anchors pattern at the start of path; '*' matches any run
// and a trailing '$' anchors the end.
func patternMatches(pattern, path string) bool {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(path)
	}
	body, anchored := strings.CutSuffix(pattern, "$")
	parts := strings.Split(body, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*")
	if anchored {
		expr += "$"
	}
	re := regexp.MustCompile(expr)
	patterns.Store(pattern, re)
	return re.MatchString(path)
}

func specificity(pattern string) int {
	return len(strings.ReplaceAll(strings.TrimSuffix(pattern, "$"), "*", ""))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.Trim(strings.ToLower(strings.TrimSpace(host)), "[]")
	if h == "localhost" || h == "localhost.localdomain" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast())
}
