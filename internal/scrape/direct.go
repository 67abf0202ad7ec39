package scrape

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/compliance"
	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/fetch"
	"github.com/hyperifyio/webcorpus/internal/robots"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

// ErrBlockedHost is returned when a fetch or redirect would reach a
// prohibited host.
var ErrBlockedHost = errors.New("prohibited host")

const (
	defaultCrawlRPS      = 2
	defaultCrawlMaxPages = 50
	maxSitemapFiles      = 5
)

// Crawler is the in-process backend: a breadth-first crawl of the target
// host that honours robots.txt and never leaves the host.
type Crawler struct {
	Fetcher *fetch.Client
	// Robots may be nil, which disables robots.txt checks.
	Robots *robots.Manager
	Filter compliance.Filter
	// RequestsPerSecond paces requests. Zero uses the profile rate limit,
	// then 2/s. A robots Crawl-delay only ever slows this down.
	RequestsPerSecond float64
	// MaxFetches caps fetch attempts per crawl. Zero means 3 × maxPages.
	MaxFetches int
}

// NewCrawler installs a compliance guard on f so that neither the initial
// request nor any redirect reaches a prohibited host.
func NewCrawler(f *fetch.Client, r *robots.Manager, filter compliance.Filter) *Crawler {
	c := &Crawler{Fetcher: f, Robots: r, Filter: filter}
	f.CheckRedirect = c.guard
	return c
}

func (c *Crawler) guard(u *url.URL) error {
	if v := c.Filter.ClassifyURL(u.String()); v.Blocked() {
		return fmt.Errorf("%w: %s (%s)", ErrBlockedHost, v.Host, v.Category)
	}
	return nil
}

func (c *Crawler) Scrape(ctx context.Context, p backend.Profile, target selecter.Target, maxPages int) ([]RawPage, error) {
	start, err := url.Parse(target.URL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("direct crawl: invalid target %q", target.URL)
	}
	if maxPages <= 0 {
		maxPages = defaultCrawlMaxPages
	}
	maxFetches := c.MaxFetches
	if maxFetches <= 0 {
		maxFetches = 3 * maxPages
	}
	rps := c.RequestsPerSecond
	if rps <= 0 {
		rps = p.RateLimit
	}
	if rps <= 0 {
		rps = defaultCrawlRPS
	}
	lim := rate.NewLimiter(rate.Limit(rps), 1)

	seed := normalizeURL(start)
	hosts := map[string]bool{strings.ToLower(start.Host): true}
	q := newFrontier()
	q.add(seed)
	if p.Has(backend.CapSitemap) {
		for _, u := range c.sitemapURLs(ctx, start, hosts, lim, maxFetches) {
			q.add(u)
		}
	}

	var (
		pages   []RawPage
		lastErr error
		fetches int
	)
	for q.hasNext() && len(pages) < maxPages && fetches < maxFetches {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		raw := q.next()
		if c.Robots != nil {
			ok, delay, err := c.Robots.Allowed(ctx, raw)
			if err != nil {
				if ctx.Err() != nil {
					return pages, ctx.Err()
				}
				lastErr = err
				continue
			}
			if !ok {
				log.Debug().Str("url", raw).Msg("disallowed by robots.txt")
				continue
			}
			if delay > 0 && rate.Every(delay) < lim.Limit() {
				lim.SetLimit(rate.Every(delay))
			}
		}
		if err := lim.Wait(ctx); err != nil {
			return pages, err
		}
		fetches++
		res, err := c.Fetcher.Get(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			log.Debug().Err(err).Str("url", raw).Msg("fetch failed")
			lastErr = err
			continue
		}
		final, err := url.Parse(res.FinalURL)
		if err != nil || final.Host == "" {
			final, _ = url.Parse(raw)
		}
		if raw == seed {
			hosts[strings.ToLower(final.Host)] = true
		}
		q.seen[normalizeURL(final)] = true

		format := formatOf(res.ContentType)
		if format == "" {
			continue
		}
		pages = append(pages, RawPage{
			URL:       final.String(),
			Payload:   res.Body,
			Format:    format,
			FetchedAt: time.Now().UTC(),
		})
		if format == extract.FormatHTML {
			for _, link := range links(res.Body, final) {
				if hosts[strings.ToLower(link.Host)] && !isStaticAsset(link) {
					q.add(normalizeURL(link))
				}
			}
		}
	}

	if len(pages) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("direct crawl of %s: %w", start.Host, lastErr)
		}
		return nil, fmt.Errorf("direct crawl of %s: %w", start.Host, ErrEmptyResult)
	}
	log.Info().Str("backend", p.ID).Str("host", start.Host).Int("pages", len(pages)).Int("fetches", fetches).Msg("crawl complete")
	return pages, nil
}

func links(body []byte, base *url.URL) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, ok := resolveLink(base, href); ok {
			base = b
		}
	}
	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if rel, _ := s.Attr("rel"); strings.Contains(strings.ToLower(rel), "nofollow") {
			return
		}
		href, _ := s.Attr("href")
		if u, ok := resolveLink(base, href); ok {
			out = append(out, u)
		}
	})
	return out
}

func formatOf(contentType string) extract.Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/html"), strings.HasPrefix(ct, "application/xhtml+xml"):
		return extract.FormatHTML
	case strings.HasPrefix(ct, "text/markdown"):
		return extract.FormatMarkdown
	case strings.HasPrefix(ct, "text/plain"):
		return extract.FormatPlain
	}
	return ""
}

type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// sitemapURLs reads the sitemaps declared in robots.txt, or /sitemap.xml when
// none are, following up to maxSitemapFiles files including nested indexes.
// It returns same-host page URLs. Failures are not errors; the crawl falls
// back to link discovery.
func (c *Crawler) sitemapURLs(ctx context.Context, start *url.URL, hosts map[string]bool, lim *rate.Limiter, limit int) []string {
	queue := []string{start.Scheme + "://" + start.Host + "/sitemap.xml"}
	if c.Robots != nil {
		if declared := c.Robots.Sitemaps(ctx, start.String()); len(declared) > 0 {
			queue = declared
		}
	}
	var out []string
	for read := 0; len(queue) > 0 && read < maxSitemapFiles && len(out) < limit; read++ {
		loc := queue[0]
		queue = queue[1:]
		if err := lim.Wait(ctx); err != nil {
			return out
		}
		res, err := c.Fetcher.Get(ctx, loc)
		if err != nil {
			log.Debug().Err(err).Str("url", loc).Msg("sitemap unavailable")
			continue
		}
		var doc sitemapDoc
		if err := xml.Unmarshal(res.Body, &doc); err != nil {
			log.Debug().Err(err).Str("url", loc).Msg("sitemap unparsable")
			continue
		}
		for _, s := range doc.Sitemaps {
			queue = append(queue, strings.TrimSpace(s.Loc))
		}
		for _, e := range doc.URLs {
			u, err := url.Parse(strings.TrimSpace(e.Loc))
			if err != nil || !hosts[strings.ToLower(u.Host)] || isStaticAsset(u) {
				continue
			}
			out = append(out, normalizeURL(u))
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}
