package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newspulse/newspulse/pkg/fetch"
)

func para(n int) string {
	return fmt.Sprintf("Paragraph %d with enough words to pass the extraction length floor easily.", n)
}

func articlePage(title string, paras int) string {
	var sb strings.Builder
	sb.WriteString("<html><body><h1>" + title + "</h1><div class='article-body'>")
	for i := 0; i < paras; i++ {
		sb.WriteString("<p>" + para(i) + "</p>")
	}
	sb.WriteString("</div></body></html>")
	return sb.String()
}

func scrapeServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
}

func testProfile(base string) SiteProfile {
	return SiteProfile{
		Name:             "Example Site",
		BaseURL:          base,
		ListURL:          base + "/news",
		LinkSelector:     "a.headline",
		TitleSelector:    "h1",
		ContentSelectors: []string{".article-body p"},
		Language:         "en",
	}
}

func TestScrapeSourceFetch(t *testing.T) {
	listing := `<html><body>
		<a class="headline" href="/story-1">One</a>
		<a class="headline" href="/story-2">Two</a>
		<a class="headline" href="/story-1">Duplicate</a>
		<a class="headline" href="/video/clip">Video</a>
		<a class="headline" href="#">Anchor</a>
	</body></html>`

	srv := scrapeServer(t, map[string]string{
		"/news":    listing,
		"/story-1": articlePage("Story one", 4),
		"/story-2": articlePage("Story two", 4),
	})
	defer srv.Close()

	src := NewScrapeSource(testProfile(srv.URL), fetch.New(time.Millisecond, fetch.WithoutRobots()))
	articles, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2 (dupe, video and anchor links filtered)", len(articles))
	}
	if articles[0].Title != "Story one" {
		t.Errorf("title = %q", articles[0].Title)
	}
	if !strings.Contains(articles[0].Content, "Paragraph 0") {
		t.Errorf("content = %q", articles[0].Content)
	}
	if articles[0].Source != "Example Site" || articles[0].Language != "en" {
		t.Errorf("metadata = %+v", articles[0])
	}
	if len(articles[0].Description) > 400 {
		t.Errorf("description too long: %d chars", len(articles[0].Description))
	}
}

func TestScrapeSourceRejectsThinPages(t *testing.T) {
	srv := scrapeServer(t, map[string]string{
		"/news": `<a class="headline" href="/thin">Thin</a>`,
		"/thin": `<html><body><h1>Thin</h1><p>Too short.</p></body></html>`,
	})
	defer srv.Close()

	src := NewScrapeSource(testProfile(srv.URL), fetch.New(time.Millisecond, fetch.WithoutRobots()))
	articles, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 0 {
		t.Errorf("thin page should be rejected, got %+v", articles)
	}
}

func TestScrapeSourceBrokenPageIsolated(t *testing.T) {
	srv := scrapeServer(t, map[string]string{
		"/news": `<a class="headline" href="/gone">Gone</a><a class="headline" href="/ok">OK</a>`,
		"/ok":   articlePage("Working story", 4),
	})
	defer srv.Close()

	src := NewScrapeSource(testProfile(srv.URL), fetch.New(time.Millisecond, fetch.WithoutRobots()))
	articles, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 || articles[0].Title != "Working story" {
		t.Errorf("articles = %+v, want the working story despite the 404", articles)
	}
}

func TestNormalizeLink(t *testing.T) {
	base, _ := url.Parse("https://example.com")

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/world/story", "https://example.com/world/story", true},
		{"https://other.com/story", "https://other.com/story", true},
		{"/story#comments", "https://example.com/story", true},
		{"#top", "", false},
		{"mailto:tips@example.com", "", false},
		{"javascript:void(0)", "", false},
		{"/video/clip-of-the-day", "", false},
		{"/sport/match-report", "", false},
		{"/live/election-updates", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeLink(base, tt.href)
		if ok != tt.ok || got != tt.want {
			t.Errorf("normalizeLink(%q) = (%q, %v), want (%q, %v)", tt.href, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractContentFallback(t *testing.T) {
	// No selector matches: the generic fallback keeps paragraphs over the
	// length floor, capped at ten.
	var sb strings.Builder
	sb.WriteString("<html><body>")
	sb.WriteString("<p>tiny</p>")
	for i := 0; i < 12; i++ {
		sb.WriteString("<p>" + para(i) + "</p>")
	}
	sb.WriteString("</body></html>")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(sb.String())))
	if err != nil {
		t.Fatal(err)
	}

	content := extractContent(doc, []string{".does-not-exist"})
	paras := strings.Split(content, "\n\n")
	if len(paras) != 10 {
		t.Errorf("fallback kept %d paragraphs, want 10", len(paras))
	}
	if strings.Contains(content, "tiny") {
		t.Error("short paragraph should be dropped by the fallback")
	}
}

func TestExtractContentSelectorPriority(t *testing.T) {
	page := `<html><body>
		<div class="related"><p>` + para(0) + `</p></div>
		<div class="body"><p>` + para(1) + `</p><p>` + para(2) + `</p><p>` + para(3) + `</p></div>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(page)))
	if err != nil {
		t.Fatal(err)
	}

	// The first selector yields only one paragraph, so the second wins.
	content := extractContent(doc, []string{".related p", ".body p"})
	if strings.Contains(content, "Paragraph 0") {
		t.Error("single-paragraph selector should be rejected")
	}
	if !strings.Contains(content, "Paragraph 1") {
		t.Errorf("content = %q", content)
	}
}
