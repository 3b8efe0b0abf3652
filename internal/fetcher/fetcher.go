// Package fetcher combines the HTTP transport (C3) and browser worker
// (C4) behind a single fetch(url, timeout, verify) call with a short-lived
// response cache, per §4.3. Grounded on original_source/crawler/fetcher.py.
package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.chromium.org/luci/common/errors"

	"github.com/marathon-track/split-crawler/internal/browser"
	"github.com/marathon-track/split-crawler/internal/transport"
)

// browserHosts is the routing table of §4.3: hosts tried on the browser
// worker first, falling through to HTTP on failure or empty result.
var browserHosts = []string{"myresult.co.kr", "spct.co.kr", "smartchip.co.kr"}

type cacheKey struct {
	url     string
	timeout time.Duration
	verify  bool
}

type cacheEntry struct {
	body    string
	expires time.Time
}

// Fetcher is the process-wide singleton combining transport and browser
// access behind a TTL cache (§9 design note).
type Fetcher struct {
	http    *transport.Client
	br      *browser.Accessor
	ttl     time.Duration
	mu      sync.Mutex
	cache   map[cacheKey]cacheEntry
}

// New builds a Fetcher. ttl is the cache lifetime (CRAWLER_CACHE_TTL,
// default 30s).
func New(httpClient *transport.Client, br *browser.Accessor, ttl time.Duration) *Fetcher {
	return &Fetcher{
		http:  httpClient,
		br:    br,
		ttl:   ttl,
		cache: make(map[cacheKey]cacheEntry),
	}
}

// Fetch retrieves url, trying the browser worker first for known
// JS-heavy hosts, falling back to the HTTP transport otherwise or on
// browser failure. Results are cached by (url, timeout, verify) for ttl.
// Network errors propagate to the caller; they are never swallowed (§4.3).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, verify bool) (string, error) {
	key := cacheKey{url: rawURL, timeout: timeout, verify: verify}
	if body, ok := f.cached(key); ok {
		return body, nil
	}

	if routeToBrowser(hostOf(rawURL)) {
		body := f.br.Fetch(ctx, rawURL, timeout)
		if body != "" {
			f.store(key, body)
			return body, nil
		}
		// fall through to HTTP on empty browser result
	}

	body, err := f.http.Get(ctx, rawURL, timeout)
	if err != nil {
		return "", errors.Annotate(err, "fetcher: fetching %s", rawURL).Err()
	}
	f.store(key, body)
	return body, nil
}

func routeToBrowser(host string) bool {
	for _, h := range browserHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	tmpl := rawURL
	if !strings.Contains(tmpl, "://") {
		tmpl = "https://" + tmpl
	}
	u, err := url.Parse(tmpl)
	if err != nil {
		return ""
	}
	return u.Host
}

func (f *Fetcher) cached(key cacheKey) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.body, true
}

func (f *Fetcher) store(key cacheKey, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = cacheEntry{body: body, expires: time.Now().Add(f.ttl)}
}
