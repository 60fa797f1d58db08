package sources

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticSource struct {
	name     string
	articles []RawArticle
	err      error
}

func (s *staticSource) Name() string { return s.name }
func (s *staticSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	return s.articles, s.err
}

func TestRegistryFetchAll(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticSource{name: "a", articles: []RawArticle{{Title: "one", URL: "https://e.com/1"}}})
	reg.Register(&staticSource{name: "b", err: errors.New("upstream down")})
	reg.Register(&staticSource{name: "c", articles: []RawArticle{{Title: "two", URL: "https://e.com/2"}, {Title: "three", URL: "https://e.com/3"}}})

	results := reg.FetchAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	byName := make(map[string]FetchResult)
	for _, r := range results {
		byName[r.Source] = r
	}
	if len(byName["a"].Articles) != 1 || byName["a"].Err != nil {
		t.Errorf("a = %+v", byName["a"])
	}
	if byName["b"].Err == nil {
		t.Error("b's failure should be carried in its result")
	}
	if len(byName["c"].Articles) != 2 {
		t.Errorf("c = %+v", byName["c"])
	}
}

func TestRegistryCarriesFeedURL(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewFeedSource("feed", "http://127.0.0.1:1/rss", "", 0))
	reg.Register(&staticSource{name: "api"})

	results := reg.FetchAll(context.Background())
	var feedURL, apiURL string
	for _, r := range results {
		if r.Source == "feed" {
			feedURL = r.FeedURL
		} else {
			apiURL = r.FeedURL
		}
	}
	if feedURL != "http://127.0.0.1:1/rss" {
		t.Errorf("feed result missing its URL: %q", feedURL)
	}
	if apiURL != "" {
		t.Errorf("non-feed source should have no feed URL, got %q", apiURL)
	}
}

func TestRawArticleValidate(t *testing.T) {
	tests := []struct {
		name    string
		article RawArticle
		ok      bool
	}{
		{"valid", RawArticle{Title: "t", URL: "https://example.com/a"}, true},
		{"empty title", RawArticle{Title: "  ", URL: "https://example.com/a"}, false},
		{"relative URL", RawArticle{Title: "t", URL: "/a"}, false},
		{"no host", RawArticle{Title: "t", URL: "https://"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.article.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := parseTime("2026-03-09T10:00:00Z", now); got.Day() != 9 {
		t.Errorf("RFC3339 parse failed: %v", got)
	}
	if got := parseTime("Mon, 09 Mar 2026 10:00:00 GMT", now); got.Day() != 9 {
		t.Errorf("RFC1123 parse failed: %v", got)
	}
	if got := parseTime("2026-03-09", now); got.Day() != 9 {
		t.Errorf("date-only parse failed: %v", got)
	}
	if got := parseTime("not a date", now); !got.Equal(now) {
		t.Errorf("unparseable input should fall back to now, got %v", got)
	}
	if got := parseTime("", now); !got.Equal(now) {
		t.Errorf("empty input should fall back to now, got %v", got)
	}
}

func TestClipRunes(t *testing.T) {
	s := "Überschrift" // the Ü is two bytes
	if got := clipRunes(s, 1); got != "" {
		t.Errorf("clipRunes(%q, 1) = %q, want the split rune dropped", s, got)
	}
	if got := clipRunes(s, 2); got != "Ü" {
		t.Errorf("clipRunes(%q, 2) = %q, want %q", s, got, "Ü")
	}
	if got := clipRunes(s, len(s)); got != s {
		t.Errorf("clipRunes within the limit changed %q to %q", s, got)
	}
}
