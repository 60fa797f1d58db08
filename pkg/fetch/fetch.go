// Package fetch provides a polite HTTP client for page scraping: a realistic
// browser user agent, a mandatory inter-request delay per host, a longer
// pause when a request switches to a different host, and a robots.txt
// gate. The delays are a politeness contract with the scraped sites, not
// a tunable optimization.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// MinDelay is the smallest allowed inter-request spacing within one host.
const MinDelay = time.Second

// hostSwitchFactor scales the per-host delay into the longer pause taken
// when consecutive requests hit distinct hosts.
const hostSwitchFactor = 3

// browserAgents is a small pool of realistic desktop browser user agents.
// One is chosen per client and kept fixed for its lifetime.
var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Client fetches pages politely. It is safe for concurrent use; requests to
// the same host are serialized by the delay bookkeeping.
type Client struct {
	http        *http.Client
	userAgent   string
	delay       time.Duration
	switchDelay time.Duration

	mu       sync.Mutex
	lastHit  map[string]time.Time
	lastHost string
	lastAny  time.Time
	robots   map[string]*robotstxt.RobotsData
	noRobots bool
}

// Option configures a Client.
type Option func(*Client)

// WithoutRobots disables the robots.txt check. Intended for tests.
func WithoutRobots() Option {
	return func(c *Client) { c.noRobots = true }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a polite fetcher with the given inter-request delay. Delays
// below MinDelay are raised to MinDelay.
func New(delay time.Duration, opts ...Option) *Client {
	if delay < MinDelay {
		delay = MinDelay
	}
	c := &Client{
		http:        &http.Client{Timeout: 25 * time.Second},
		userAgent:   browserAgents[rand.Intn(len(browserAgents))],
		delay:       delay,
		switchDelay: hostSwitchFactor * delay,
		lastHit:     make(map[string]time.Time),
		robots:      make(map[string]*robotstxt.RobotsData),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the agent string chosen for this client.
func (c *Client) UserAgent() string { return c.userAgent }

// Get fetches rawURL and returns the response body. It blocks until the
// per-host delay has elapsed and refuses URLs disallowed by robots.txt.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	if !c.noRobots {
		allowed, err := c.allowed(ctx, u)
		if err == nil && !allowed {
			return nil, fmt.Errorf("disallowed by robots.txt: %s", rawURL)
		}
	}

	if err := c.waitTurn(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// waitTurn sleeps until the host's delay slot is free, respecting ctx.
// Moving to a different host than the previous request waits the longer
// cross-source gap, so concurrent sources sharing one client stay spaced
// out even when every host is fresh.
func (c *Client) waitTurn(ctx context.Context, host string) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastHit[host].Add(c.delay)
	if host != c.lastHost && !c.lastAny.IsZero() {
		if cross := c.lastAny.Add(c.switchDelay); cross.After(next) {
			next = cross
		}
	}
	if next.Before(now) {
		next = now
	}
	c.lastHit[host] = next
	c.lastHost = host
	c.lastAny = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// allowed consults the host's robots.txt, fetching and caching it on first
// use. Unreachable or unparseable robots files default to allowed.
func (c *Client) allowed(ctx context.Context, u *url.URL) (bool, error) {
	c.mu.Lock()
	data, ok := c.robots[u.Host]
	c.mu.Unlock()

	if !ok {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return true, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		data, err = robotstxt.FromResponse(resp)
		if err != nil {
			data = nil
		}
		c.mu.Lock()
		c.robots[u.Host] = data
		c.mu.Unlock()
	}

	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.Path, c.userAgent), nil
}
