// Package sources defines the adapter contract for pulling news from
// heterogeneous upstreams (syndication feeds, search APIs, scraped pages)
// and normalizing everything into one RawArticle stream.
package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// RawArticle is the normalized, pre-enrichment shape every adapter produces.
type RawArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Author      string    `json:"author,omitempty"`
	Category    string    `json:"category,omitempty"`
	Language    string    `json:"language,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Validate reports whether the article satisfies the adapter contract:
// a non-empty title and an absolute URL.
func (a *RawArticle) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("empty title")
	}
	u, err := url.Parse(a.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid article URL %q", a.URL)
	}
	return nil
}

// Source is the interface every ingestion adapter implements.
type Source interface {
	// Name returns the human-readable name of the source.
	Name() string

	// Fetch retrieves articles from this source. A failed upstream returns
	// an error; individual malformed entries are skipped silently.
	Fetch(ctx context.Context) ([]RawArticle, error)
}

// FetchResult is one source's outcome within a fan-out round.
type FetchResult struct {
	Source   string
	FeedURL  string // set for feed-backed sources so the orchestrator can update status
	Articles []RawArticle
	Err      error
}

// Registry holds the set of adapters for one ingestion cycle.
type Registry struct {
	sources []Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

// FetchAll fetches from every registered source concurrently and fans the
// per-source results back in. Ordering across sources is unspecified; a
// source failure is reported in its FetchResult, never returned here.
func (r *Registry) FetchAll(ctx context.Context) []FetchResult {
	ch := make(chan FetchResult, len(r.sources))
	for _, s := range r.sources {
		go func(src Source) {
			articles, err := src.Fetch(ctx)
			res := FetchResult{Source: src.Name(), Articles: articles, Err: err}
			if f, ok := src.(*FeedSource); ok {
				res.FeedURL = f.feedURL
			}
			ch <- res
		}(s)
	}

	results := make([]FetchResult, 0, len(r.sources))
	for range r.sources {
		results = append(results, <-ch)
	}
	return results
}

// clipRunes shortens s to at most n bytes without splitting a UTF-8 rune.
func clipRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseTime tries the common feed/API timestamp layouts; on failure it
// substitutes now rather than erroring, per the adapter contract.
func parseTime(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range []string{
		time.RFC3339, time.RFC1123Z, time.RFC1123,
		"2006-01-02T15:04:05Z", "2006-01-02 15:04:05", "2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}
