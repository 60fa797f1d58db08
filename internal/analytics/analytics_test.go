package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/newspulse/newspulse/internal/store"
)

type fakeStore struct {
	store.Store
	articles  []store.Article
	snapshots map[string]*store.Snapshot
	inserts   int
}

func newFakeStore(articles []store.Article) *fakeStore {
	return &fakeStore{articles: articles, snapshots: make(map[string]*store.Snapshot)}
}

func (f *fakeStore) ArticlesBetween(ctx context.Context, from, to time.Time, limit int) ([]store.Article, error) {
	var out []store.Article
	for _, a := range f.articles {
		if !a.PublishedAt.Before(from) && a.PublishedAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func snapKey(tf store.Timeframe, t time.Time) string {
	return string(tf) + "|" + t.UTC().Format(time.RFC3339)
}

func (f *fakeStore) GetSnapshot(ctx context.Context, tf store.Timeframe, bucketStart time.Time) (*store.Snapshot, error) {
	return f.snapshots[snapKey(tf, bucketStart)], nil
}

func (f *fakeStore) InsertSnapshot(ctx context.Context, s *store.Snapshot) error {
	f.inserts++
	f.snapshots[snapKey(s.Timeframe, s.BucketStart)] = s
	return nil
}

func article(url, source string, published time.Time, score float64, label string, keywords ...string) store.Article {
	return store.Article{
		URL:         url,
		Source:      source,
		PublishedAt: published,
		Sentiment:   store.Sentiment{Score: score, Label: label},
		Keywords:    keywords,
	}
}

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fs := newFakeStore([]store.Article{
		article("u1", "reuters", now.Add(-time.Hour), 0.6, store.LabelPositive, "ai", "chips"),
		article("u2", "reuters", now.Add(-2*time.Hour), -0.4, store.LabelNegative, "ai"),
		article("u3", "bbc", now.Add(-3*time.Hour), 0.1, store.LabelNeutral, "energy"),
	})
	e := NewEngine(fs, nil)

	m, err := e.ComputeMetrics(context.Background(), store.TimeframeHour, now)
	if err != nil {
		t.Fatal(err)
	}

	if m.TotalArticles != 3 {
		t.Errorf("total = %d, want 3", m.TotalArticles)
	}
	if m.PositiveCount != 1 || m.NegativeCount != 1 || m.NeutralCount != 1 {
		t.Errorf("label counts = %d/%d/%d", m.PositiveCount, m.NegativeCount, m.NeutralCount)
	}
	wantAvg := (0.6 - 0.4 + 0.1) / 3
	if diff := m.AvgSentiment - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg sentiment = %v, want %v", m.AvgSentiment, wantAvg)
	}

	if len(m.TopKeywords) == 0 || m.TopKeywords[0].Name != "ai" || m.TopKeywords[0].Count != 2 {
		t.Errorf("top keywords = %+v", m.TopKeywords)
	}
	wantKwAvg := (0.6 - 0.4) / 2
	if diff := m.TopKeywords[0].AvgSentiment - wantKwAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ai avg sentiment = %v, want %v", m.TopKeywords[0].AvgSentiment, wantKwAvg)
	}
	if len(m.TopSources) == 0 || m.TopSources[0].Name != "reuters" || m.TopSources[0].Count != 2 {
		t.Errorf("top sources = %+v", m.TopSources)
	}

	// Hour timeframe has 24 hourly buckets over a 24h lookback.
	if len(m.Trend) != 24 {
		t.Fatalf("trend buckets = %d, want 24", len(m.Trend))
	}
	var counted int
	for _, p := range m.Trend {
		counted += p.Count
	}
	if counted != 3 {
		t.Errorf("trend counts sum = %d, want 3", counted)
	}
}

func TestTrendCalendarBucketsCoverWholeWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fs := newFakeStore([]store.Article{
		article("u1", "reuters", now.Add(-time.Hour), 0.5, store.LabelPositive),
		article("u2", "bbc", now.Add(-200*24*time.Hour), -0.1, store.LabelNegative),
	})
	e := NewEngine(fs, nil)

	m, err := e.ComputeMetrics(context.Background(), store.TimeframeMonth, now)
	if err != nil {
		t.Fatal(err)
	}

	// 365 days back from March 2026 spans thirteen calendar months.
	if len(m.Trend) != 13 {
		t.Fatalf("trend buckets = %d, want 13", len(m.Trend))
	}
	first := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !m.Trend[0].BucketStart.Equal(first) {
		t.Errorf("first bucket = %v, want calendar-aligned %v", m.Trend[0].BucketStart, first)
	}
	last := m.Trend[len(m.Trend)-1]
	if !last.BucketStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("last bucket = %v, want the month containing now", last.BucketStart)
	}
	if last.Count != 1 {
		t.Errorf("newest article missing from the trend: last bucket count = %d", last.Count)
	}

	var counted int
	for _, p := range m.Trend {
		counted += p.Count
	}
	if counted != m.TotalArticles {
		t.Errorf("trend counts sum = %d, want every one of the %d window articles", counted, m.TotalArticles)
	}
}

func TestComputeMetricsEmptyWindow(t *testing.T) {
	e := NewEngine(newFakeStore(nil), nil)

	m, err := e.ComputeMetrics(context.Background(), store.TimeframeDay, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalArticles != 0 || m.AvgSentiment != 0 {
		t.Errorf("empty window metrics = %+v", m)
	}
	if m.TopKeywords == nil || m.TopSources == nil || m.Trend == nil {
		t.Error("empty window should yield empty slices, not nil")
	}
}

func TestComputeMetricsInvalidTimeframe(t *testing.T) {
	e := NewEngine(newFakeStore(nil), nil)
	if _, err := e.ComputeMetrics(context.Background(), "fortnight", time.Now()); err == nil {
		t.Error("expected error for invalid timeframe")
	}
}

func TestCacheSnapshotIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	fs := newFakeStore([]store.Article{
		article("u1", "reuters", now.Add(-time.Hour), 0.5, store.LabelPositive, "ai"),
	})
	e := NewEngine(fs, nil)

	first, err := e.CacheSnapshot(context.Background(), store.TimeframeHour, now)
	if err != nil {
		t.Fatal(err)
	}
	if fs.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", fs.inserts)
	}

	// New article arrives; a second call in the same bucket serves the
	// cached snapshot and must not recompute or rewrite.
	fs.articles = append(fs.articles, article("u2", "bbc", now.Add(-time.Minute), -0.9, store.LabelNegative))

	second, err := e.CacheSnapshot(context.Background(), store.TimeframeHour, now.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if fs.inserts != 1 {
		t.Errorf("inserts = %d after second call, want still 1", fs.inserts)
	}
	if second.TotalArticles != first.TotalArticles {
		t.Errorf("cached total = %d, want %d", second.TotalArticles, first.TotalArticles)
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2026, 3, 11, 14, 42, 7, 0, time.UTC) // a Wednesday

	tests := []struct {
		tf   store.Timeframe
		want time.Time
	}{
		{store.TimeframeHour, time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)},
		{store.TimeframeDay, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{store.TimeframeWeek, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{store.TimeframeMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := BucketStart(tt.tf, ts); !got.Equal(tt.want) {
			t.Errorf("BucketStart(%s) = %v, want %v", tt.tf, got, tt.want)
		}
	}
}
