package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

type validators struct {
	etag         string
	lastModified string
}

func (v validators) apply(h http.Header) {
	if v.etag != "" {
		h.Set("If-None-Match", v.etag)
	}
	if v.lastModified != "" {
		h.Set("If-Modified-Since", v.lastModified)
	}
}

type response struct {
	Result
	notModified  bool
	etag         string
	lastModified string
}

// once performs a single attempt.
func (c *Client) once(ctx context.Context, rawURL string, v validators) (response, error) {
	if err := c.acquire(ctx); err != nil {
		return response{}, err
	}
	defer c.release()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	v.apply(req.Header)

	resp, err := c.client().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	out := response{Result: Result{ContentType: resp.Header.Get("Content-Type"), FinalURL: resp.Request.URL.String()}}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		out.notModified = true
		return out, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return response{}, &StatusError{Code: resp.StatusCode}
	case !isText(out.ContentType):
		return response{}, fmt.Errorf("%w: %s", ErrUnsupportedContentType, out.ContentType)
	}

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	if out.Body, err = io.ReadAll(io.LimitReader(resp.Body, limit)); err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	out.etag = resp.Header.Get("ETag")
	out.lastModified = resp.Header.Get("Last-Modified")
	return out, nil
}

// client copies HTTPClient so the redirect policy never leaks into the
// caller's client.
func (c *Client) client() *http.Client {
	var hc http.Client
	if c.HTTPClient != nil {
		hc = *c.HTTPClient
	}
	hc.CheckRedirect = c.redirectPolicy
	return &hc
}

func (c *Client) redirectPolicy(req *http.Request, via []*http.Request) error {
	limit := c.MaxRedirects
	if limit <= 0 {
		limit = defaultMaxRedirects
	}
	if len(via) >= limit {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if !isHTTPScheme(req.URL) {
		return errors.New("redirect to unsupported scheme")
	}
	if c.CheckRedirect != nil {
		return c.CheckRedirect(req.URL)
	}
	return nil
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

// textTypes are the media types the crawler can extract or parse as sitemaps.
var textTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/plain":            true,
	"text/markdown":         true,
	"text/xml":              true,
	"application/xml":       true,
}

func isText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return textTypes[mt]
}
