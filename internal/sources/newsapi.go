package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const newsAPIBase = "https://newsapi.org/v2"

// NewsAPISource fetches articles from the NewsAPI.org search endpoints.
//
// With a free-text query it searches /everything sorted by recency over the
// last 24 hours; without one it pulls /top-headlines for a default country.
// The two modes are mutually exclusive, and country and sources parameters
// are never combined (the provider rejects that).
type NewsAPISource struct {
	apiKey   string
	query    string
	sources  string // comma-separated provider source IDs
	category string
	country  string
	pageSize int
	client   *http.Client
	logger   *slog.Logger
}

// NewNewsAPISource creates the API adapter. An empty apiKey is allowed; the
// adapter then degrades to a no-op for the cycle.
func NewNewsAPISource(apiKey, query, sourceIDs, category string, pageSize int) *NewsAPISource {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	return &NewsAPISource{
		apiKey:   apiKey,
		query:    query,
		sources:  sourceIDs,
		category: category,
		country:  "us",
		pageSize: pageSize,
		client:   &http.Client{Timeout: 20 * time.Second},
		logger:   slog.Default(),
	}
}

func (n *NewsAPISource) Name() string { return "NewsAPI" }

type newsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

func (n *NewsAPISource) Fetch(ctx context.Context) ([]RawArticle, error) {
	if n.apiKey == "" {
		// Missing credential degrades this adapter to a no-op, not a failure.
		n.logger.Warn("NewsAPI key not configured, skipping API source")
		return nil, nil
	}

	endpoint, params := n.buildRequest()
	params.Set("apiKey", n.apiKey)
	params.Set("pageSize", fmt.Sprint(n.pageSize))

	reqURL := newsAPIBase + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch NewsAPI: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read NewsAPI response: %w", err)
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode NewsAPI response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("NewsAPI error (%s): %s", parsed.Code, parsed.Message)
	}

	now := time.Now()
	articles := make([]RawArticle, 0, len(parsed.Articles))
	for _, item := range parsed.Articles {
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.URL) == "" {
			continue
		}
		source := item.Source.Name
		if source == "" {
			source = "NewsAPI"
		}
		articles = append(articles, RawArticle{
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Content:     strings.TrimSpace(item.Content),
			URL:         item.URL,
			Source:      source,
			Author:      item.Author,
			Category:    n.category,
			Language:    "en",
			ImageURL:    item.URLToImage,
			PublishedAt: parseTime(item.PublishedAt, now),
		})
	}
	return articles, nil
}

// buildRequest selects the endpoint and query parameters for the two
// mutually exclusive request modes.
func (n *NewsAPISource) buildRequest() (string, url.Values) {
	params := url.Values{}
	if n.query != "" {
		// Query mode: everything, newest first, last 24 hours only.
		params.Set("q", n.query)
		params.Set("sortBy", "publishedAt")
		params.Set("language", "en")
		params.Set("from", time.Now().Add(-24*time.Hour).UTC().Format(time.RFC3339))
		if n.sources != "" {
			params.Set("sources", n.sources)
		}
		return "/everything", params
	}

	// Headline mode: current top headlines. Sources and country cannot both
	// be set, so explicit source IDs win.
	if n.sources != "" {
		params.Set("sources", n.sources)
	} else {
		params.Set("country", n.country)
		if n.category != "" {
			params.Set("category", n.category)
		}
	}
	return "/top-headlines", params
}
