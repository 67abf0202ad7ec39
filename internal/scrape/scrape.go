// Package scrape runs a selected backend against a target and returns the
// raw pages it produced. Two implementations exist: hosted actors on the
// Apify platform and an in-process crawler.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/extract"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

// RawPage is one page as returned by a backend, before extraction.
type RawPage struct {
	URL     string
	Payload []byte
	// Format is the payload format hint; empty means unknown.
	Format    extract.Format
	Title     string
	FetchedAt time.Time
}

var (
	// ErrEmptyResult means the backend ran but produced no pages.
	ErrEmptyResult = errors.New("backend returned no pages")
	// ErrAuth means the scraping platform rejected the credentials.
	ErrAuth = errors.New("scraping platform rejected credentials")
	// ErrUnavailable means no implementation is configured for the kind.
	ErrUnavailable = errors.New("backend not configured")
)

// Scraper produces raw pages for a target. A non-nil error with no pages is
// a backend-level failure; callers may fall back to another backend.
type Scraper interface {
	Scrape(ctx context.Context, p backend.Profile, target selecter.Target, maxPages int) ([]RawPage, error)
}

// Backends dispatches on the profile kind.
type Backends struct {
	Direct Scraper
	Apify  Scraper
}

func (b Backends) Scrape(ctx context.Context, p backend.Profile, target selecter.Target, maxPages int) ([]RawPage, error) {
	var s Scraper
	switch p.Kind {
	case backend.KindDirect:
		s = b.Direct
	case backend.KindApify:
		s = b.Apify
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", p.Kind)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, p.Kind)
	}
	return s.Scrape(ctx, p, target, maxPages)
}
