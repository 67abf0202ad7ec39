package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/extract"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

// DefaultApifyBaseURL is the public platform API.
const DefaultApifyBaseURL = "https://api.apify.com"

// maxDatasetBytes caps a single dataset response.
const maxDatasetBytes = 512 << 20

// APIError is a non-2xx platform response.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apify: status %d", e.Status)
	}
	return fmt.Sprintf("apify: status %d: %s: %s", e.Status, e.Type, e.Message)
}

// Apify runs hosted actors synchronously and reads their default dataset.
type Apify struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// MaxAttempts includes the first call. Zero means 3.
	MaxAttempts    int
	InitialBackoff time.Duration
	// MaxConcurrency is passed to the actor. Zero means 5.
	MaxConcurrency int
	// RunTimeout bounds a single actor run on the platform side.
	RunTimeout time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// actorPath turns "owner/name" into the "owner~name" form the API expects.
func actorPath(id string) string {
	return strings.Replace(id, "/", "~", 1)
}

func (a *Apify) limiter(p backend.Profile) *rate.Limiter {
	if p.RateLimit <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limiters == nil {
		a.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := a.limiters[p.ID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.RateLimit), 1)
		a.limiters[p.ID] = l
	}
	return l
}

// Input builds the actor input for a crawl of target. Profile input keys
// override the defaults.
func (a *Apify) Input(p backend.Profile, target selecter.Target, maxPages int) map[string]any {
	conc := a.MaxConcurrency
	if conc <= 0 {
		conc = 5
	}
	in := map[string]any{
		"startUrls":      []map[string]string{{"url": target.URL}},
		"maxCrawlPages":  maxPages,
		"maxConcurrency": conc,
		"saveMarkdown":   true,
	}
	maps.Copy(in, p.Input)
	return in
}

func (a *Apify) Scrape(ctx context.Context, p backend.Profile, target selecter.Target, maxPages int) ([]RawPage, error) {
	if strings.TrimSpace(a.Token) == "" {
		return nil, fmt.Errorf("%w: missing token", ErrAuth)
	}
	body, err := json.Marshal(a.Input(p, target, maxPages))
	if err != nil {
		return nil, fmt.Errorf("encode actor input: %w", err)
	}
	base := strings.TrimRight(a.BaseURL, "/")
	if base == "" {
		base = DefaultApifyBaseURL
	}
	q := url.Values{}
	if maxPages > 0 {
		q.Set("maxItems", strconv.Itoa(maxPages))
	}
	if a.RunTimeout > 0 {
		q.Set("timeout", strconv.Itoa(int(a.RunTimeout/time.Second)))
	}
	endpoint := base + "/v2/acts/" + url.PathEscape(actorPath(p.ID)) + "/run-sync-get-dataset-items"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	eb := backoff.NewExponentialBackOff()
	if a.InitialBackoff > 0 {
		eb.InitialInterval = a.InitialBackoff
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
	lim := a.limiter(p)

	var items []map[string]any
	op := func() error {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		got, err := a.call(ctx, endpoint, body)
		if err != nil {
			return classifyAPIError(err)
		}
		items = got
		return nil
	}
	notify := func(err error, d time.Duration) {
		log.Warn().Err(err).Str("backend", p.ID).Dur("wait", d).Msg("retrying actor run")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("run actor %s: %w", p.ID, err)
	}

	now := time.Now().UTC()
	pages := make([]RawPage, 0, len(items))
	for i, item := range items {
		if maxPages > 0 && len(pages) >= maxPages {
			break
		}
		page, ok := itemToPage(item)
		if !ok {
			log.Debug().Str("backend", p.ID).Int("item", i).Msg("dataset item has no url")
			continue
		}
		if len(page.Payload) == 0 {
			log.Debug().Str("backend", p.ID).Str("url", page.URL).Msg("dataset item has no content")
		}
		page.FetchedAt = now
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("actor %s: %w", p.ID, ErrEmptyResult)
	}
	log.Info().Str("backend", p.ID).Int("items", len(items)).Int("pages", len(pages)).Msg("actor run complete")
	return pages, nil
}

func (a *Apify) call(ctx context.Context, endpoint string, body []byte) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)
	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}
	var items []map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDatasetBytes)).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return items, nil
}

// classifyAPIError decides whether an attempt may be retried.
func classifyAPIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrAuth, apiErr))
		case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500:
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	return err
}

// contentFields are tried in order; the first non-empty string wins. An
// item without any of them still becomes a page with an empty payload, so
// the extractor reports it as failed.
var contentFields = []struct {
	path   []string
	format extract.Format
}{
	{[]string{"markdown"}, extract.FormatMarkdown},
	{[]string{"html"}, extract.FormatHTML},
	{[]string{"text"}, extract.FormatPlain},
	{[]string{"content"}, ""},
	{[]string{"crawl", "html"}, extract.FormatHTML},
}

func itemToPage(item map[string]any) (RawPage, bool) {
	u := stringAt(item, "url")
	if u == "" {
		u = stringAt(item, "loadedUrl")
	}
	if u == "" {
		u = stringAt(item, "crawl", "loadedUrl")
	}
	if u == "" {
		return RawPage{}, false
	}
	page := RawPage{URL: u, Title: stringAt(item, "title")}
	if page.Title == "" {
		page.Title = stringAt(item, "metadata", "title")
	}
	for _, f := range contentFields {
		if v := stringAt(item, f.path...); strings.TrimSpace(v) != "" {
			page.Payload = []byte(v)
			page.Format = f.format
			break
		}
	}
	return page, true
}

func stringAt(m map[string]any, path ...string) string {
	var cur any = m
	for _, k := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	s, _ := cur.(string)
	return s
}
