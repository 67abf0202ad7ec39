package app

import (
	"net"
	"net/http"
	"time"
)

// clientProfile sizes an HTTP client for one kind of traffic.
type clientProfile struct {
	idlePerHost int
	timeout     time.Duration
}

var (
	// API traffic goes to few hosts with long calls: uploads, synchronous
	// actor runs, index polling.
	apiProfile = clientProfile{idlePerHost: 128, timeout: 10 * time.Minute}
	// Crawl traffic is paced per host by the crawler itself.
	crawlProfile = clientProfile{idlePerHost: 8, timeout: time.Minute}
)

// newClient returns a client with its own transport, so API and crawl pools
// never compete for idle connections.
func (p clientProfile) newClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   p.idlePerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: p.timeout / 2,
			ExpectContinueTimeout: time.Second,
		},
	}
}
