// Package fetch is the HTTP client of the direct crawler: timeouts, bounded
// retries, conditional requests against the disk cache, and a redirect
// policy that a caller can veto per hop.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/webcorpus/internal/cache"
)

const (
	defaultBackoff      = 200 * time.Millisecond
	defaultMaxBodyBytes = 10 << 20
	defaultMaxRedirects = 5
)

// Client fetches text resources. The zero value makes single attempts with
// no cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the first request.
	MaxAttempts    int
	InitialBackoff time.Duration
	// PerRequestTimeout bounds each attempt separately.
	PerRequestTimeout time.Duration
	MaxBodyBytes      int64

	Cache *cache.Store
	// BypassCache skips conditional requests; responses are still stored.
	BypassCache bool

	MaxRedirects int
	// CheckRedirect vets the request URL and every redirect target. Get
	// returns its error wrapped, so errors.Is matches it.
	CheckRedirect func(*url.URL) error
	// MaxConcurrent bounds in-flight requests. Zero is unbounded.
	MaxConcurrent int64

	semOnce sync.Once
	sem     *semaphore.Weighted
}

// Result is one successful response.
type Result struct {
	Body        []byte
	ContentType string
	// FinalURL is the URL after redirects.
	FinalURL  string
	FromCache bool
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// ErrUnsupportedContentType is returned for responses that are not text.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Get fetches rawURL. 5xx, 429 and timeouts are retried with exponential
// backoff up to MaxAttempts; a 304 is answered from the cache.
func (c *Client) Get(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Result{}, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	if c.CheckRedirect != nil {
		if err := c.CheckRedirect(u); err != nil {
			return Result{}, err
		}
	}

	var v validators
	if !c.BypassCache {
		if e, ok := c.Cache.Lookup(ctx, rawURL); ok {
			v = validators{etag: e.ETag, lastModified: e.LastModified}
		}
	}

	var out Result
	op := func() error {
		resp, err := c.once(ctx, rawURL, v)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if resp.notModified {
			body, err := c.Cache.Body(ctx, rawURL)
			if err != nil {
				// Validators without a body; ask again unconditionally.
				v = validators{}
				return fmt.Errorf("revalidate: %w", err)
			}
			resp.Body, resp.FromCache = body, true
		} else {
			entry := cache.Entry{ContentType: resp.ContentType, ETag: resp.etag, LastModified: resp.lastModified}
			if err := c.Cache.Put(ctx, rawURL, entry, resp.Body); err != nil {
				log.Debug().Err(err).Str("url", rawURL).Msg("cache put failed")
			}
		}
		out = resp.Result
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("url", rawURL).Dur("wait", wait).Msg("retrying fetch")
	}
	if err := backoff.RetryNotify(op, c.policy(ctx), notify); err != nil {
		return Result{}, err
	}
	return out, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.InitialBackoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = defaultBackoff
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.semOnce.Do(func() { c.sem = semaphore.NewWeighted(c.MaxConcurrent) })
	return c.sem.Acquire(ctx, 1)
}

func (c *Client) release() {
	if c.sem != nil {
		c.sem.Release(1)
	}
}
