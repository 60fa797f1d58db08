// Package config defines the application configuration for the newspulse
// pipeline and its loader defaults.
package config

import (
	"fmt"
	"time"

	"github.com/newspulse/newspulse/internal/sources"
	"github.com/newspulse/newspulse/pkg/config"
	"github.com/newspulse/newspulse/pkg/llm"
)

type Config struct {
	Storage   StorageConfig         `yaml:"storage"`
	LLM       llm.Config            `yaml:"llm"`
	NewsAPI   NewsAPIConfig         `yaml:"newsapi"`
	Feeds     []FeedConfig          `yaml:"feeds"`
	Profiles  []sources.SiteProfile `yaml:"scrape_profiles"`
	Ingest    IngestConfig          `yaml:"ingest"`
	Alerts    AlertsConfig          `yaml:"alerts"`
	Analytics AnalyticsConfig       `yaml:"analytics"`
	Notify    NotifyConfig          `yaml:"notify"`
}

type StorageConfig struct {
	// Driver selects the backend: "sqlite" (default) or "mongo".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"STORAGE_DSN"`
}

type NewsAPIConfig struct {
	APIKey   string `yaml:"api_key" env:"NEWSAPI_KEY"`
	Query    string `yaml:"query"`
	Sources  string `yaml:"sources"`
	Country  string `yaml:"country"`
	Category string `yaml:"category"`
	PageSize int    `yaml:"page_size"`
}

// Configured reports whether the NewsAPI adapter should take part in
// ingestion cycles. Country and page size carry defaults, so only the
// fields a user must set explicitly count. A configured adapter without a
// key still registers; it warns and skips instead of failing the cycle.
func (n NewsAPIConfig) Configured() bool {
	return n.APIKey != "" || n.Query != "" || n.Sources != ""
}

type FeedConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Category      string        `yaml:"category"`
	FetchInterval time.Duration `yaml:"fetch_interval"`
	MaxArticles   int           `yaml:"max_articles"`
}

type IngestConfig struct {
	// Interval between ingestion cycles.
	Interval time.Duration `yaml:"interval" env:"INGEST_INTERVAL"`
	// MaxEnrichPerCycle caps how many new articles get the full LLM
	// treatment in one cycle; the rest wait for the next pass.
	MaxEnrichPerCycle int `yaml:"max_enrich_per_cycle" env:"MAX_ENRICH_PER_CYCLE"`
}

type AlertsConfig struct {
	Interval time.Duration `yaml:"interval" env:"ALERTS_INTERVAL"`
}

type AnalyticsConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	Stdout     bool   `yaml:"stdout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "newspulse.db",
		},
		LLM: llm.DefaultConfig(),
		NewsAPI: NewsAPIConfig{
			Country:  "us",
			PageSize: 50,
		},
		Ingest: IngestConfig{
			Interval:          15 * time.Minute,
			MaxEnrichPerCycle: 20,
		},
		Alerts: AlertsConfig{
			Interval: time.Hour,
		},
		Analytics: AnalyticsConfig{
			SnapshotInterval: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Stdout: true,
		},
	}
}

// Load reads the config file at path on top of the defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := config.LoadOrDefault(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "sqlite", "mongo", "mongodb":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Ingest.MaxEnrichPerCycle < 0 {
		return fmt.Errorf("max_enrich_per_cycle must not be negative")
	}
	if c.Ingest.Interval <= 0 {
		c.Ingest.Interval = 15 * time.Minute
	}
	if c.Alerts.Interval <= 0 {
		c.Alerts.Interval = time.Hour
	}
	if c.Analytics.SnapshotInterval <= 0 {
		c.Analytics.SnapshotInterval = 24 * time.Hour
	}
	for i, f := range c.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feeds[%d]: url is required", i)
		}
	}
	return nil
}
