package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newspulse/newspulse/pkg/fetch"
)

// Extraction thresholds for scraped article pages.
const (
	minContentChars   = 100 // pages with less recovered text are rejected
	minSelectorChars  = 200 // combined length a content selector must yield
	minSelectorParas  = 2   // paragraphs a content selector must yield
	minFallbackChars  = 20  // generic <p> fallback keeps paragraphs over this
	maxFallbackParas  = 10  // and at most this many of them
	defaultScrapeCap  = 5   // articles per site per cycle unless configured
)

// SiteProfile describes how to crawl one news site: where the listing page
// is and which selectors recover the article fields.
type SiteProfile struct {
	Name             string   `yaml:"name"`
	BaseURL          string   `yaml:"base_url"`
	ListURL          string   `yaml:"list_url"`
	LinkSelector     string   `yaml:"link_selector"`
	TitleSelector    string   `yaml:"title_selector"`
	ContentSelectors []string `yaml:"content_selectors"` // tried in priority order
	DateSelector     string   `yaml:"date_selector,omitempty"`
	AuthorSelector   string   `yaml:"author_selector,omitempty"`
	ImageSelector    string   `yaml:"image_selector,omitempty"`
	Category         string   `yaml:"category,omitempty"`
	Language         string   `yaml:"language,omitempty"`
	MaxArticles      int      `yaml:"max_articles,omitempty"`
}

// nonArticlePatterns mark listing links that are never article pages.
var nonArticlePatterns = []string{
	"/live/", "/live-", "liveblog",
	"/topics/", "/topic/", "/tag/", "/tags/",
	"/video/", "/videos/", "/audio/", "/podcast", "/gallery/", "/pictures/",
	"/sport/", "/sports/", "/weather/",
}

// ScrapeSource crawls a site profile in two phases: listing page for
// candidate links, then each candidate page for title and body.
type ScrapeSource struct {
	profile SiteProfile
	client  *fetch.Client
	logger  *slog.Logger
}

// NewScrapeSource creates an HTML-page adapter for one site profile. The
// fetch client enforces the inter-request politeness delay; it may be shared
// across sources to serialize same-host traffic.
func NewScrapeSource(profile SiteProfile, client *fetch.Client) *ScrapeSource {
	return &ScrapeSource{
		profile: profile,
		client:  client,
		logger:  slog.Default(),
	}
}

func (s *ScrapeSource) Name() string { return s.profile.Name }

func (s *ScrapeSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	links, err := s.collectLinks(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var articles []RawArticle
	for _, link := range links {
		if ctx.Err() != nil {
			return articles, ctx.Err()
		}
		article, err := s.extractArticle(ctx, link, now)
		if err != nil {
			// One broken page does not fail the source.
			s.logger.Warn("article extraction failed", "site", s.profile.Name, "url", link, "error", err)
			continue
		}
		if article != nil {
			articles = append(articles, *article)
		}
	}
	return articles, nil
}

// collectLinks fetches the listing page and returns candidate article URLs,
// filtered and capped.
func (s *ScrapeSource) collectLinks(ctx context.Context) ([]string, error) {
	listURL := s.profile.ListURL
	if listURL == "" {
		listURL = s.profile.BaseURL
	}
	body, err := s.client.Get(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", s.profile.Name, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", s.profile.Name, err)
	}

	base, err := url.Parse(s.profile.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", s.profile.BaseURL, err)
	}

	limit := s.profile.MaxArticles
	if limit <= 0 {
		limit = defaultScrapeCap
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find(s.profile.LinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		link, ok := normalizeLink(base, href)
		if !ok || seen[link] {
			return true
		}
		seen[link] = true
		links = append(links, link)
		return len(links) < limit
	})
	return links, nil
}

// normalizeLink absolutizes href against base and rejects non-article URLs.
func normalizeLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""

	lower := strings.ToLower(abs.Path)
	for _, pat := range nonArticlePatterns {
		if strings.Contains(lower, pat) {
			return "", false
		}
	}
	return abs.String(), true
}

// extractArticle fetches one candidate page and recovers its fields. A nil
// article with nil error means the page was rejected (too little content).
func (s *ScrapeSource) extractArticle(ctx context.Context, pageURL string, now time.Time) (*RawArticle, error) {
	body, err := s.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find(s.profile.TitleSelector).First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	content := extractContent(doc, s.profile.ContentSelectors)

	if title == "" || len(content) < minContentChars {
		return nil, nil
	}

	article := &RawArticle{
		Title:       title,
		Content:     content,
		URL:         pageURL,
		Source:      s.profile.Name,
		Category:    s.profile.Category,
		Language:    s.profile.Language,
		PublishedAt: now,
	}
	if s.profile.DateSelector != "" {
		raw := strings.TrimSpace(doc.Find(s.profile.DateSelector).First().AttrOr("datetime",
			doc.Find(s.profile.DateSelector).First().Text()))
		article.PublishedAt = parseTime(raw, now)
	}
	if s.profile.AuthorSelector != "" {
		article.Author = strings.TrimSpace(doc.Find(s.profile.AuthorSelector).First().Text())
	}
	if s.profile.ImageSelector != "" {
		article.ImageURL = doc.Find(s.profile.ImageSelector).First().AttrOr("src", "")
	}
	article.Description = clipRunes(content, 400)
	return article, nil
}

// extractContent walks the selector priority list and accepts the first one
// yielding at least minSelectorParas paragraphs over minSelectorChars
// combined; otherwise it falls back to all page paragraphs longer than
// minFallbackChars, capped at maxFallbackParas.
func extractContent(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		var paras []string
		total := 0
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text == "" {
				return
			}
			paras = append(paras, text)
			total += len(text)
		})
		if len(paras) >= minSelectorParas && total >= minSelectorChars {
			return strings.Join(paras, "\n\n")
		}
	}

	// Generic fallback: every paragraph on the page over the length floor.
	var paras []string
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if len(text) > minFallbackChars {
			paras = append(paras, text)
		}
		return len(paras) < maxFallbackParas
	})
	return strings.Join(paras, "\n\n")
}
