package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BlocksListedDomainsAndSubdomains(t *testing.T) {
	cases := []struct {
		host string
		cat  Category
	}{
		{"instagram.com", CategorySocialMedia},
		{"www.instagram.com", CategorySocialMedia},
		{"WWW.Instagram.COM", CategorySocialMedia},
		{"instagram.com.", CategorySocialMedia},
		{"m.facebook.com:443", CategorySocialMedia},
		{"x.com", CategorySocialMedia},
		{"smile.amazon.co.uk", CategoryECommerce},
		{"maps.google.com", CategorySearchEngine},
		{"trends.google.com", CategorySearchEngine},
		{"app.apollo.io", CategoryB2BDirectory},
	}
	for _, tc := range cases {
		v := Default.Classify(tc.host)
		assert.Truef(t, v.Blocked(), "%s should be blocked", tc.host)
		assert.Equalf(t, tc.cat, v.Category, "category for %s", tc.host)
	}
}

func TestClassify_AllowsLookalikes(t *testing.T) {
	for _, h := range []string{
		"notinstagram.com",
		"instagram.com.example.org",
		"docs.python.org",
		"example.com:8080",
		"box.com",
		"127.0.0.1",
	} {
		v := Default.Classify(h)
		assert.Truef(t, v.Allowed, "%s should be allowed, got %+v", h, v)
	}
}

func TestClassify_FailsClosedOnMalformed(t *testing.T) {
	for _, h := range []string{
		"",
		" ",
		" example.com",
		"exa mple.com",
		"example..com",
		"-bad.com",
		"https://example.com",
		"user@example.com",
		"example.com/path",
		"example.com:",
	} {
		v := Default.Classify(h)
		require.Truef(t, v.Blocked(), "%q should be blocked", h)
		assert.Equal(t, CategoryMalformed, v.Category)
	}
}

func TestClassifyURL(t *testing.T) {
	assert.True(t, Default.ClassifyURL("https://docs.example.com/guide").Allowed)
	assert.Equal(t, CategorySocialMedia, Default.ClassifyURL("https://www.tiktok.com/@someone").Category)
	assert.True(t, Default.ClassifyURL("ftp://example.com").Blocked())
	assert.True(t, Default.ClassifyURL("not a url").Blocked())
	assert.True(t, Default.ClassifyURL("https://user:pw@example.com/").Blocked())
}

func TestClassifyBackend(t *testing.T) {
	v := Default.ClassifyBackend("apify/instagram-scraper", "Instagram Scraper")
	assert.True(t, v.Blocked())
	assert.Equal(t, CategorySocialMedia, v.Category)

	v = Default.ClassifyBackend("junglee/amz-product-details", "")
	assert.Equal(t, CategoryECommerce, v.Category)

	assert.True(t, Default.ClassifyBackend("apify/website-content-crawler", "Website Content Crawler").Allowed)
}

func TestRules_ReturnsCopy(t *testing.T) {
	r := Rules()
	require.NotEmpty(t, r)
	r[0].Pattern = "example.com"
	assert.True(t, Default.Classify("example.com").Allowed)
	assert.True(t, Default.Classify("instagram.com").Blocked())
}
