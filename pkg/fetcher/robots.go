package fetcher

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsCache resolves and caches a host's /robots.txt, applying an
// "allow all" policy when the fetch fails or is non-200 (spec.md §4.1).
type robotsCache struct {
	mu     sync.Mutex
	byHost map[string]*robotstxt.RobotsData
	client *http.Client
}

func newRobotsCache(client *http.Client) *robotsCache {
	return &robotsCache{
		byHost: make(map[string]*robotstxt.RobotsData),
		client: client,
	}
}

// allowed reports whether userAgent may fetch rawURL's path, and the
// Crawl-delay (0 if unspecified) that applies to that host.
func (c *robotsCache) allowed(rawURL, userAgent string) (bool, time.Duration) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true, 0
	}

	data := c.get(u)
	if data == nil {
		return true, 0
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), group.CrawlDelay
}

func (c *robotsCache) get(u *url.URL) *robotstxt.RobotsData {
	host := u.Scheme + "://" + u.Host

	c.mu.Lock()
	if data, ok := c.byHost[host]; ok {
		c.mu.Unlock()
		return data
	}
	c.mu.Unlock()

	data := c.fetch(host)

	c.mu.Lock()
	c.byHost[host] = data
	c.mu.Unlock()

	return data
}

func (c *robotsCache) fetch(host string) *robotstxt.RobotsData {
	resp, err := c.client.Get(host + "/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
