// Package analytics computes windowed dashboard metrics over persisted
// articles: volume, sentiment aggregates, top keywords and sources, and
// per-bucket trend series. Computed metrics can be cached as snapshots
// keyed by timeframe and bucket start, so re-running a job for the same
// bucket is a no-op.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/newspulse/newspulse/internal/store"
)

const (
	topN = 10

	// maxWindowArticles bounds how many articles one metrics pass loads.
	maxWindowArticles = 10000
)

// DashboardMetrics is the aggregate view for one timeframe window.
type DashboardMetrics struct {
	Timeframe     store.Timeframe `json:"timeframe"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TotalArticles int             `json:"total_articles"`
	AvgSentiment  float64         `json:"avg_sentiment"`
	PositiveCount int             `json:"positive_count"`
	NegativeCount int             `json:"negative_count"`
	NeutralCount  int             `json:"neutral_count"`
	TopKeywords   []RankedItem    `json:"top_keywords"`
	TopSources    []RankedItem    `json:"top_sources"`
	Trend         []TrendPoint    `json:"trend"`
}

// RankedItem is a keyword or source ranked by article count.
type RankedItem struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// TrendPoint is one time bucket in the trend series.
type TrendPoint struct {
	BucketStart  time.Time `json:"bucket_start"`
	Count        int       `json:"count"`
	AvgSentiment float64   `json:"avg_sentiment"`
}

// window returns the lookback for a timeframe.
func window(tf store.Timeframe) time.Duration {
	switch tf {
	case store.TimeframeHour:
		return 24 * time.Hour
	case store.TimeframeDay:
		return 30 * 24 * time.Hour
	case store.TimeframeWeek:
		return 12 * 7 * 24 * time.Hour
	case store.TimeframeMonth:
		return 365 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// nextBucket advances a calendar-aligned bucket start by one bucket.
func nextBucket(tf store.Timeframe, t time.Time) time.Time {
	switch tf {
	case store.TimeframeHour:
		return t.Add(time.Hour)
	case store.TimeframeDay:
		return t.AddDate(0, 0, 1)
	case store.TimeframeWeek:
		return t.AddDate(0, 0, 7)
	case store.TimeframeMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.Add(time.Hour)
	}
}

// BucketStart returns the start of the bucket containing t for a
// timeframe, in UTC. Used as the snapshot cache key.
func BucketStart(tf store.Timeframe, t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case store.TimeframeHour:
		return t.Truncate(time.Hour)
	case store.TimeframeDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case store.TimeframeWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Back up to Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case store.TimeframeMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}

// Engine computes and caches dashboard metrics.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

func NewEngine(s store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// ComputeMetrics aggregates all articles in the timeframe's lookback
// window ending at now. An empty window yields zeroed metrics, never an
// error.
func (e *Engine) ComputeMetrics(ctx context.Context, tf store.Timeframe, now time.Time) (*DashboardMetrics, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("invalid timeframe %q", tf)
	}

	from := now.Add(-window(tf))

	articles, err := e.store.ArticlesBetween(ctx, from, now, maxWindowArticles)
	if err != nil {
		return nil, fmt.Errorf("load articles for %s window: %w", tf, err)
	}

	m := &DashboardMetrics{
		Timeframe:     tf,
		From:          from,
		To:            now,
		TotalArticles: len(articles),
		TopKeywords:   []RankedItem{},
		TopSources:    []RankedItem{},
		Trend:         []TrendPoint{},
	}
	if len(articles) == 0 {
		return m, nil
	}

	var sentimentSum float64
	keywords := make(map[string]*RankedItem)
	srcs := make(map[string]*RankedItem)

	for _, a := range articles {
		sentimentSum += a.Sentiment.Score
		switch a.Sentiment.Label {
		case store.LabelPositive:
			m.PositiveCount++
		case store.LabelNegative:
			m.NegativeCount++
		default:
			m.NeutralCount++
		}
		for _, kw := range a.Keywords {
			kw = strings.ToLower(kw)
			accumulate(keywords, kw, a.Sentiment.Score)
		}
		if a.Source != "" {
			accumulate(srcs, a.Source, a.Sentiment.Score)
		}
	}

	m.AvgSentiment = sentimentSum / float64(len(articles))
	m.TopKeywords = rank(keywords, topN)
	m.TopSources = rank(srcs, topN)
	m.Trend = trend(articles, tf, from, now)
	return m, nil
}

// accumulate folds one observation into the running rank map. AvgSentiment
// holds a running sum until rank divides it out.
func accumulate(items map[string]*RankedItem, name string, score float64) {
	it, ok := items[name]
	if !ok {
		it = &RankedItem{Name: name}
		items[name] = it
	}
	it.Count++
	it.AvgSentiment += score
}

func rank(items map[string]*RankedItem, n int) []RankedItem {
	out := make([]RankedItem, 0, len(items))
	for _, it := range items {
		it.AvgSentiment /= float64(it.Count)
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// trend buckets the window into one point per calendar bucket. The first
// bucket starts at the boundary containing from, the last one covers up
// to to, so no in-window article falls outside the series.
func trend(articles []store.Article, tf store.Timeframe, from, to time.Time) []TrendPoint {
	var points []TrendPoint
	for cur := BucketStart(tf, from); cur.Before(to); cur = nextBucket(tf, cur) {
		points = append(points, TrendPoint{BucketStart: cur})
	}
	if len(points) == 0 {
		points = []TrendPoint{{BucketStart: BucketStart(tf, from)}}
	}

	for _, a := range articles {
		ts := a.PublishedAt.UTC()
		idx := sort.Search(len(points), func(i int) bool { return points[i].BucketStart.After(ts) }) - 1
		if idx < 0 {
			continue
		}
		points[idx].Count++
		points[idx].AvgSentiment += a.Sentiment.Score
	}
	for i := range points {
		if points[i].Count > 0 {
			points[i].AvgSentiment /= float64(points[i].Count)
		}
	}
	return points
}

// CacheSnapshot computes the metrics for the bucket containing now and
// persists them, unless a snapshot for that bucket already exists. It
// returns the metrics either way.
func (e *Engine) CacheSnapshot(ctx context.Context, tf store.Timeframe, now time.Time) (*DashboardMetrics, error) {
	bucketStart := BucketStart(tf, now)

	if snap, err := e.store.GetSnapshot(ctx, tf, bucketStart); err != nil {
		return nil, fmt.Errorf("look up snapshot: %w", err)
	} else if snap != nil {
		var m DashboardMetrics
		if err := json.Unmarshal(snap.Metrics, &m); err != nil {
			return nil, fmt.Errorf("decode cached snapshot: %w", err)
		}
		e.logger.Debug("snapshot cache hit", "timeframe", tf, "bucket", bucketStart)
		return &m, nil
	}

	m, err := e.ComputeMetrics(ctx, tf, now)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	snap := &store.Snapshot{
		Timeframe:   tf,
		BucketStart: bucketStart,
		Metrics:     payload,
		CreatedAt:   now,
	}
	if err := e.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	e.logger.Info("snapshot cached", "timeframe", tf, "bucket", bucketStart, "articles", m.TotalArticles)
	return m, nil
}
