package aggregate

import (
	"net/url"
	"testing"

	"github.com/hyperifyio/webcorpus/internal/scrape"
)

func TestMergePages_DedupTrimUTM(t *testing.T) {
	first := []scrape.RawPage{
		{URL: "https://example.com/page?utm_source=x&utm_medium=y", Payload: []byte("one")},
	}
	second := []scrape.RawPage{
		{URL: "https://EXAMPLE.com/page/", Payload: []byte("two")},
		{URL: "https://example.com/other#top", Payload: []byte("three")},
	}
	out, dupes := MergePages(first, second)
	if len(out) != 2 || dupes != 1 {
		t.Fatalf("expected 2 pages and 1 duplicate, got %d and %d", len(out), dupes)
	}
	if out[0].URL != "https://example.com/page" || string(out[0].Payload) != "one" {
		t.Fatalf("unexpected first page: %+v", out[0])
	}
	if out[1].URL != "https://example.com/other" {
		t.Fatalf("fragment not stripped: %q", out[1].URL)
	}
}

func TestMergePages_PayloadReplacesEmpty(t *testing.T) {
	out, dupes := MergePages([]scrape.RawPage{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/a?fbclid=1", Payload: []byte("body")},
	})
	if len(out) != 1 || dupes != 1 || string(out[0].Payload) != "body" {
		t.Fatalf("expected the page with a payload to win: %+v", out)
	}
}

func TestMergePages_KeepsOddURLs(t *testing.T) {
	out, _ := MergePages([]scrape.RawPage{{URL: ""}, {URL: "not a url"}, {URL: "not a url"}})
	if len(out) != 2 {
		t.Fatalf("unparsable URLs are kept as is, got %d", len(out))
	}
}

func TestCanonical_KeepsRealQuery(t *testing.T) {
	u, _ := url.Parse("HTTPS://Docs.Example.com/search?q=go&utm_campaign=z")
	if got := Canonical(u); got != "https://docs.example.com/search?q=go" {
		t.Fatalf("got %q", got)
	}
}
