// Package store defines the persistent document model for the pipeline and
// provides SQLite and MongoDB backed implementations of the Store port.
package store

import (
	"context"
	"fmt"
	"time"
)

// Sentiment label values.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Alert kinds.
const (
	AlertSentimentChange = "sentiment_change"
	AlertVolumeSpike     = "volume_spike"
	AlertKeywordMention  = "keyword_mention"
	AlertCustom          = "custom"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Timeframe selects the aggregation window for analytics.
type Timeframe string

const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Valid reports whether t is a known timeframe.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth:
		return true
	}
	return false
}

// Sentiment holds the NLP sentiment annotation for an article.
type Sentiment struct {
	Score      float64            `json:"score"`      // [-1, 1]
	Confidence float64            `json:"confidence"` // [0, 1]
	Label      string             `json:"label"`      // positive | negative | neutral
	Emotions   map[string]float64 `json:"emotions,omitempty"`
}

// Entities holds categorized named entities extracted from an article.
type Entities struct {
	People        []string `json:"people,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Technologies  []string `json:"technologies,omitempty"`
	Other         []string `json:"other,omitempty"`
}

// Article is the enriched, persistent form of an ingested news item.
// It is created once per unique URL and never updated afterwards.
type Article struct {
	ID          string    `json:"id"` // sha256 hex of URL
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
	FetchedAt   time.Time `json:"fetched_at"`

	Sentiment   Sentiment `json:"sentiment"`
	Keywords    []string  `json:"keywords,omitempty"`
	Entities    Entities  `json:"entities"`
	Readability float64   `json:"readability"` // [0, 100]
	WordCount   int       `json:"word_count"`
	ShareCount  int       `json:"share_count,omitempty"`
}

// KeywordTrack is a user-configured term monitored by the alert evaluator.
// The pipeline only reads these records.
type KeywordTrack struct {
	Keyword                string    `json:"keyword"`
	Category               string    `json:"category,omitempty"`
	Active                 bool      `json:"active"`
	SentimentChangePercent float64   `json:"sentiment_change_percent"`
	VolumeSpikePercent     float64   `json:"volume_spike_percent"`
	CreatedAt              time.Time `json:"created_at"`
}

// Snapshot is a cached, write-once aggregate metrics record for one
// (timeframe, bucket-start) pair. Metrics is an opaque JSON document.
type Snapshot struct {
	Timeframe   Timeframe `json:"timeframe"`
	BucketStart time.Time `json:"bucket_start"`
	Metrics     []byte    `json:"metrics"`
	CreatedAt   time.Time `json:"created_at"`
}

// Alert is a threshold-breach record emitted by the alert evaluator.
type Alert struct {
	ID        string    `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Keyword   string    `json:"keyword,omitempty"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Read      bool      `json:"read"`
	Sent      bool      `json:"sent"`
	Payload   []byte    `json:"payload,omitempty"` // triggering metrics, opaque JSON
	CreatedAt time.Time `json:"created_at"`
}

// Feed is a configured syndication source. The pipeline mutates only the
// status fields (LastFetchedAt, LastSuccessAt, ErrorCount, LastError); the
// configuration fields belong to the configuration surface.
type Feed struct {
	URL           string        `json:"url"` // unique
	Name          string        `json:"name"`
	Category      string        `json:"category,omitempty"`
	Active        bool          `json:"active"`
	FetchInterval time.Duration `json:"fetch_interval,omitempty"`
	MaxArticles   int           `json:"max_articles,omitempty"`

	LastFetchedAt time.Time `json:"last_fetched_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	ErrorCount    int       `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// Store is the storage port consumed by the pipeline, analytics engine and
// alert evaluator. Implementations must enforce a uniqueness constraint on
// Article.ID and Feed.URL; InsertArticle treats a uniqueness violation as
// "already present" rather than an error.
type Store interface {
	// Articles.
	InsertArticle(ctx context.Context, a *Article) (inserted bool, err error)
	HasArticle(ctx context.Context, id string) (bool, error)
	ArticlesBetween(ctx context.Context, from, to time.Time, limit int) ([]Article, error)
	ArticlesMentioning(ctx context.Context, keyword string, from, to time.Time) ([]Article, error)
	CountArticlesBetween(ctx context.Context, from, to time.Time) (int, error)

	// Feeds.
	UpsertFeed(ctx context.Context, f *Feed) error
	ListActiveFeeds(ctx context.Context) ([]Feed, error)
	MarkFeedSuccess(ctx context.Context, url string, at time.Time) error
	MarkFeedError(ctx context.Context, url string, msg string, at time.Time) error

	// Keyword tracks.
	UpsertTrack(ctx context.Context, t *KeywordTrack) error
	ListActiveTracks(ctx context.Context) ([]KeywordTrack, error)

	// Alerts.
	InsertAlert(ctx context.Context, a *Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)

	// Analytics snapshots.
	GetSnapshot(ctx context.Context, tf Timeframe, bucketStart time.Time) (*Snapshot, error)
	InsertSnapshot(ctx context.Context, s *Snapshot) error

	Close() error
}

// Open creates a Store for the given driver ("sqlite" or "mongo") and DSN.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(dsn)
	case "mongo", "mongodb":
		return OpenMongo(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", driver)
}
