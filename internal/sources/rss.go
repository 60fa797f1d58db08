package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// FeedSource fetches articles from an RSS or Atom feed.
type FeedSource struct {
	name     string
	feedURL  string
	category string
	maxItems int
	parser   *gofeed.Parser
}

// NewFeedSource creates a feed adapter. maxItems caps the number of entries
// taken per cycle; zero means a default of 20.
func NewFeedSource(name, feedURL, category string, maxItems int) *FeedSource {
	if maxItems <= 0 {
		maxItems = 20
	}
	p := gofeed.NewParser()
	p.UserAgent = "NewsPulse/1.0 (+https://github.com/newspulse/newspulse)"
	p.Client = &http.Client{Timeout: 20 * time.Second}
	return &FeedSource{
		name:     name,
		feedURL:  feedURL,
		category: category,
		maxItems: maxItems,
		parser:   p,
	}
}

func (f *FeedSource) Name() string { return f.name }

// FeedURL returns the configured feed address.
func (f *FeedSource) FeedURL() string { return f.feedURL }

func (f *FeedSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	feed, err := f.parser.ParseURLWithContext(f.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.name, err)
	}

	now := time.Now()
	articles := make([]RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(articles) >= f.maxItems {
			break
		}
		// Malformed entries (no link or title) are skipped, not an error.
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}

		published := now
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		// Prefer the full body (content:encoded) over the summary; both are
		// decoded from HTML to plain text.
		content := htmlToText(item.Content)
		description := htmlToText(item.Description)
		if content == "" {
			content = description
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}
		imageURL := ""
		if item.Image != nil {
			imageURL = item.Image.URL
		}
		category := f.category
		if category == "" && len(item.Categories) > 0 {
			category = item.Categories[0]
		}

		articles = append(articles, RawArticle{
			Title:       strings.TrimSpace(item.Title),
			Description: description,
			Content:     content,
			URL:         stripTrackingParams(item.Link),
			Source:      f.name,
			Author:      author,
			Category:    category,
			Language:    feed.Language,
			ImageURL:    imageURL,
			PublishedAt: published,
		})
	}
	return articles, nil
}

// stripTrackingParams drops utm_* query noise so identical articles shared
// through different channels hash to the same URL.
func stripTrackingParams(link string) string {
	if idx := strings.Index(link, "?utm_"); idx > 0 {
		return link[:idx]
	}
	return link
}

// htmlToText decodes an HTML fragment to whitespace-normalized plain text.
// Non-HTML input passes through unchanged.
func htmlToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	var sb strings.Builder
	collectText(doc, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "iframe", "noscript":
			return
		case "p", "br", "li", "div":
			sb.WriteString(" ")
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
