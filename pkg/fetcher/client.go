// Package fetcher implements the robots.txt-aware HTTP fetcher (spec.md
// §4.1) shared by the SPARQL client, RSS reader, and HTML source handling.
package fetcher

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 300 * time.Second
	maxAttempts    = 5

	// cacheTTL bounds how long a fetched body is served from cache before
	// the next Fetch re-hits the origin (spec.md §4.1/§2 Fetcher caching).
	cacheTTL = 15 * time.Minute
)

// Fetcher retrieves regulation text over HTTP, honoring robots.txt,
// per-host Crawl-delay, and a bounded exponential-backoff retry policy.
type Fetcher struct {
	client    *http.Client
	userAgent string
	robots    *robotsCache
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	cache     ResponseCache
}

// New builds a Fetcher identifying itself with userAgent (the bot name plus
// a contact URL, per spec.md §4.1), backed by an in-process response cache.
func New(userAgent string) *Fetcher {
	return NewWithCache(userAgent, NewInProcessCache())
}

// NewWithCache builds a Fetcher backed by an explicit ResponseCache, used by
// cmd/annex4parser to swap in a RedisCache when ANNEX4_CACHE_REDIS_URL is
// configured. A nil cache disables caching entirely.
func NewWithCache(userAgent string, cache ResponseCache) *Fetcher {
	client := &http.Client{Timeout: 30 * time.Second}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		robots:    newRobotsCache(client),
		limiters:  make(map[string]*rate.Limiter),
		cache:     cache,
	}
}

// Fetch retrieves rawURL's decoded text body, or ("", nil) if robots.txt
// disallows the path. A 4xx status returns an error without retrying; when
// every retry attempt fails, the last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(ctx, rawURL); ok {
			return body, nil
		}
	}

	allowed, crawlDelay := f.robots.allowed(rawURL, f.userAgent)
	if !allowed {
		return "", nil
	}

	f.waitForCrawlDelay(ctx, rawURL, crawlDelay)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, status, err := f.doRequest(ctx, rawURL)
		if err == nil && status < 300 {
			if f.cache != nil {
				f.cache.Set(ctx, rawURL, body, cacheTTL)
			}
			return body, nil
		}
		if err == nil && status >= 400 && status < 500 {
			// Terminal: 4xx never retries.
			return "", fmt.Errorf("fetcher: %s returned status %d", rawURL, status)
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("fetcher: %s returned status %d", rawURL, status)
		}

		if attempt == maxAttempts-1 {
			break
		}
		if sleepErr := sleepBackoff(ctx, attempt); sleepErr != nil {
			return "", sleepErr
		}
	}

	return "", lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}

	return string(body), resp.StatusCode, nil
}

// waitForCrawlDelay blocks until at least crawlDelay has elapsed since the
// last request to rawURL's host, via a per-host token-bucket limiter with
// burst 1 (one request per interval, spec.md §4.1).
func (f *Fetcher) waitForCrawlDelay(ctx context.Context, rawURL string, crawlDelay time.Duration) {
	if crawlDelay <= 0 {
		return
	}

	host := hostOf(rawURL)

	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(crawlDelay), 1)
		limiter.Allow() // consume the initial burst token so the first Wait enforces the delay
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	_ = limiter.Wait(ctx)
}

func hostOf(rawURL string) string {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL
	}
	return req.URL.Host
}

// sleepBackoff waits base*2^attempt capped at maxBackoff, plus jitter, per
// the teacher's resiliency client backoff shape.
func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(math.Pow(2, float64(attempt))) * initialBackoff
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter := time.Duration(0)
	if n, err := rand.Int(rand.Reader, big.NewInt(1000)); err == nil {
		jitter = time.Duration(n.Int64()) * time.Millisecond
	}

	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
