// Package pipeline orchestrates one ingestion cycle: fan out across all
// configured sources, drop what the store already holds, enrich what is
// new, and persist the results. Source failures are isolated per source
// and recorded against the feed they came from.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/dedup"
	"github.com/newspulse/newspulse/internal/enrich"
	"github.com/newspulse/newspulse/internal/sources"
	"github.com/newspulse/newspulse/internal/store"
	"github.com/newspulse/newspulse/pkg/fetch"
)

// SourceReport is the per-source outcome of a cycle.
type SourceReport struct {
	Source    string `json:"source"`
	Fetched   int    `json:"fetched"`
	Persisted int    `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes one ingestion cycle.
type Report struct {
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration"`
	Sources        []SourceReport `json:"sources"`
	TotalFetched   int            `json:"total_fetched"`
	TotalPersisted int            `json:"total_persisted"`
	Duplicates     int            `json:"duplicates"`
	Skipped        int            `json:"skipped"` // over the per-cycle enrichment cap
	Errors         int            `json:"errors"`
}

// Orchestrator wires sources, dedup, enrichment and storage together.
type Orchestrator struct {
	store    store.Store
	resolver *dedup.Resolver
	enricher *enrich.Enricher
	cfg      *config.Config
	fetcher  *fetch.Client
	logger   *slog.Logger
}

func NewOrchestrator(s store.Store, enricher *enrich.Enricher, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    s,
		resolver: dedup.NewResolver(s),
		enricher: enricher,
		cfg:      cfg,
		fetcher:  fetch.New(fetch.MinDelay),
		logger:   logger,
	}
}

// SyncFeeds pushes the configured feed list into the store so cycles and
// status queries share one source of truth.
func (o *Orchestrator) SyncFeeds(ctx context.Context) error {
	for _, fc := range o.cfg.Feeds {
		f := &store.Feed{
			URL:           fc.URL,
			Name:          fc.Name,
			Category:      fc.Category,
			Active:        true,
			FetchInterval: fc.FetchInterval,
			MaxArticles:   fc.MaxArticles,
		}
		if err := o.store.UpsertFeed(ctx, f); err != nil {
			return fmt.Errorf("sync feed %s: %w", fc.URL, err)
		}
	}
	return nil
}

// buildRegistry assembles the adapters for one cycle from the stored
// active feeds plus the configured API and scrape sources.
func (o *Orchestrator) buildRegistry(ctx context.Context) (*sources.Registry, error) {
	reg := sources.NewRegistry()

	feeds, err := o.store.ListActiveFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}
	for _, f := range feeds {
		reg.Register(sources.NewFeedSource(f.Name, f.URL, f.Category, f.MaxArticles))
	}

	// The adapter itself copes with a missing key, so registration only
	// requires that NewsAPI is configured at all.
	if api := o.cfg.NewsAPI; api.Configured() {
		reg.Register(sources.NewNewsAPISource(api.APIKey, api.Query, api.Sources, api.Category, api.PageSize))
	}

	for _, profile := range o.cfg.Profiles {
		reg.Register(sources.NewScrapeSource(profile, o.fetcher))
	}

	return reg, nil
}

// RunCycle executes one full ingestion pass. It only returns an error on
// infrastructure failure (store unreachable, context canceled); upstream
// trouble lands in the report instead.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{StartedAt: started}

	reg, err := o.buildRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		o.logger.Warn("no sources configured, nothing to ingest")
		report.Duration = time.Since(started)
		return report, nil
	}

	o.logger.Info("ingestion cycle started", "sources", reg.Len())
	results := reg.FetchAll(ctx)

	budget := o.cfg.Ingest.MaxEnrichPerCycle
	for _, res := range results {
		sr := SourceReport{Source: res.Source, Fetched: len(res.Articles)}

		if res.Err != nil {
			sr.Error = res.Err.Error()
			report.Errors++
			o.logger.Error("source fetch failed", "source", res.Source, "error", res.Err)
			if res.FeedURL != "" {
				if err := o.store.MarkFeedError(ctx, res.FeedURL, res.Err.Error(), time.Now()); err != nil {
					o.logger.Error("record feed error failed", "feed", res.FeedURL, "error", err)
				}
			}
			report.Sources = append(report.Sources, sr)
			continue
		}

		if res.FeedURL != "" {
			if err := o.store.MarkFeedSuccess(ctx, res.FeedURL, time.Now()); err != nil {
				o.logger.Error("record feed success failed", "feed", res.FeedURL, "error", err)
			}
		}

		persisted, dupes, skipped, failed, err := o.ingestBatch(ctx, res.Articles, &budget)
		if err != nil {
			return nil, err
		}
		sr.Persisted = persisted
		report.TotalFetched += sr.Fetched
		report.TotalPersisted += persisted
		report.Duplicates += dupes
		report.Skipped += skipped
		report.Errors += failed
		report.Sources = append(report.Sources, sr)
	}

	report.Duration = time.Since(started)
	o.logger.Info("ingestion cycle finished",
		"fetched", report.TotalFetched,
		"persisted", report.TotalPersisted,
		"duplicates", report.Duplicates,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"duration", report.Duration,
	)
	return report, nil
}

// ingestBatch runs dedup, enrichment and persistence for one source's
// articles. budget is the remaining cycle-wide enrichment allowance;
// articles beyond it stay unpersisted and will be picked up again next
// cycle. A store error on one article is counted in failed and does not
// stop the batch; only cancellation aborts it.
func (o *Orchestrator) ingestBatch(ctx context.Context, articles []sources.RawArticle, budget *int) (persisted, dupes, skipped, failed int, err error) {
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return persisted, dupes, skipped, failed, fmt.Errorf("cycle canceled: %w", err)
		}

		raw := &articles[i]
		if err := raw.Validate(); err != nil {
			o.logger.Debug("dropping invalid article", "source", raw.Source, "error", err)
			continue
		}

		id, status, err := o.resolver.Resolve(ctx, raw.URL)
		if err != nil {
			failed++
			o.logger.Error("dedup lookup failed, skipping article", "url", raw.URL, "error", err)
			continue
		}
		if status == dedup.StatusDuplicate {
			dupes++
			continue
		}

		if *budget <= 0 {
			skipped++
			continue
		}
		*budget--

		article := o.enrichArticle(ctx, id, raw)
		inserted, err := o.store.InsertArticle(ctx, article)
		if err != nil {
			failed++
			o.logger.Error("persist failed, skipping article", "url", raw.URL, "error", err)
			continue
		}
		if !inserted {
			// Another cycle won the race since our dedup check.
			dupes++
			continue
		}
		persisted++
	}
	return persisted, dupes, skipped, failed, nil
}

// enrichArticle runs the full LLM treatment on one new article. Non-English
// articles get their title and summary translated first so downstream
// keyword matching works on one language.
func (o *Orchestrator) enrichArticle(ctx context.Context, id string, raw *sources.RawArticle) *store.Article {
	title, description := raw.Title, raw.Description
	if lang := primaryLang(raw.Language); lang != "" && lang != "en" {
		title, description = o.enricher.Translate(ctx, title, description, raw.Language)
	}

	text := raw.Content
	if text == "" {
		text = description
	}

	a := &store.Article{
		ID:          id,
		Title:       title,
		Description: description,
		Content:     raw.Content,
		URL:         raw.URL,
		Source:      raw.Source,
		Author:      raw.Author,
		Category:    raw.Category,
		Language:    raw.Language,
		ImageURL:    raw.ImageURL,
		PublishedAt: raw.PublishedAt,
		FetchedAt:   time.Now(),
		WordCount:   len(strings.Fields(raw.Content)),
	}
	a.Sentiment = o.enricher.Sentiment(ctx, title, text)
	a.Entities = o.enricher.Entities(ctx, title, text)
	a.Keywords = o.enricher.Keywords(ctx, title, text, 10)
	a.Readability = float64(o.enricher.Readability(ctx, text))
	return a
}

// primaryLang reduces a language tag to its lowercase primary subtag, so
// feed values like "en-US" or "en_GB" read as "en".
func primaryLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
