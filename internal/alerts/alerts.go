// Package alerts evaluates tracked keywords against recent coverage and
// raises alerts on volume spikes and sentiment shifts. Each evaluation
// compares the last 24 hours against the 24 hours before that.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/newspulse/newspulse/internal/store"
	"github.com/newspulse/newspulse/pkg/notify"
)

// compareWindow is the width of both the recent and the baseline window.
const compareWindow = 24 * time.Hour

// Evaluator runs the per-keyword alert checks.
type Evaluator struct {
	store  store.Store
	sink   *notify.Dispatcher
	logger *slog.Logger
}

func NewEvaluator(s store.Store, sink *notify.Dispatcher, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{store: s, sink: sink, logger: logger}
}

// Evaluate checks every active keyword track and persists any triggered
// alerts. A failing track is logged and skipped; the others still run.
// It returns the alerts raised in this pass.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) ([]store.Alert, error) {
	tracks, err := e.store.ListActiveTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keyword tracks: %w", err)
	}

	var raised []store.Alert
	for _, track := range tracks {
		alerts, err := e.evaluateTrack(ctx, track, now)
		if err != nil {
			e.logger.Error("keyword evaluation failed", "keyword", track.Keyword, "error", err)
			continue
		}
		raised = append(raised, alerts...)
	}
	return raised, nil
}

func (e *Evaluator) evaluateTrack(ctx context.Context, track store.KeywordTrack, now time.Time) ([]store.Alert, error) {
	recentFrom := now.Add(-compareWindow)
	prevFrom := now.Add(-2 * compareWindow)

	recent, err := e.store.ArticlesMentioning(ctx, track.Keyword, recentFrom, now)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	previous, err := e.store.ArticlesMentioning(ctx, track.Keyword, prevFrom, recentFrom)
	if err != nil {
		return nil, fmt.Errorf("baseline window: %w", err)
	}

	var alerts []store.Alert
	if a := e.checkVolumeSpike(track, len(recent), len(previous), now); a != nil {
		alerts = append(alerts, *a)
	}
	if a := e.checkSentimentChange(track, recent, previous, now); a != nil {
		alerts = append(alerts, *a)
	}

	for i := range alerts {
		if err := e.raise(ctx, &alerts[i]); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// checkVolumeSpike fires when coverage volume grew past the track's
// threshold. With no baseline coverage there is nothing to compare
// against, so a first burst of articles never spikes.
func (e *Evaluator) checkVolumeSpike(track store.KeywordTrack, recent, previous int, now time.Time) *store.Alert {
	if track.VolumeSpikePercent <= 0 || previous == 0 {
		return nil
	}

	change := float64(recent-previous) / float64(previous) * 100
	if change < track.VolumeSpikePercent {
		return nil
	}

	severity := store.SeverityMedium
	if change > 100 {
		severity = store.SeverityHigh
	}

	payload, _ := json.Marshal(map[string]any{
		"recent_count":   recent,
		"previous_count": previous,
		"change_percent": change,
	})
	return &store.Alert{
		Kind:     store.AlertVolumeSpike,
		Keyword:  track.Keyword,
		Severity: severity,
		Message: fmt.Sprintf("Coverage of %q jumped %.0f%%: %d articles in the last 24h vs %d before",
			track.Keyword, change, recent, previous),
		Payload:   payload,
		CreatedAt: now,
	}
}

// checkSentimentChange fires when the mean sentiment moved more than the
// track's threshold between the two windows. Both windows need articles.
func (e *Evaluator) checkSentimentChange(track store.KeywordTrack, recent, previous []store.Article, now time.Time) *store.Alert {
	if track.SentimentChangePercent <= 0 || len(recent) == 0 || len(previous) == 0 {
		return nil
	}

	recentMean := meanSentiment(recent)
	prevMean := meanSentiment(previous)
	change := math.Abs(recentMean-prevMean) * 100
	if change < track.SentimentChangePercent {
		return nil
	}

	severity := store.SeverityMedium
	if change > 50 {
		severity = store.SeverityHigh
	}

	direction := "improved"
	if recentMean < prevMean {
		direction = "deteriorated"
	}

	payload, _ := json.Marshal(map[string]any{
		"recent_mean":    recentMean,
		"previous_mean":  prevMean,
		"change_percent": change,
	})
	return &store.Alert{
		Kind:     store.AlertSentimentChange,
		Keyword:  track.Keyword,
		Severity: severity,
		Message: fmt.Sprintf("Sentiment on %q %s by %.0f points (mean %.2f -> %.2f over 24h)",
			track.Keyword, direction, change, prevMean, recentMean),
		Payload:   payload,
		CreatedAt: now,
	}
}

// raise persists the alert and pushes it to the notification sink.
// Delivery failure marks the alert unsent but never drops it.
func (e *Evaluator) raise(ctx context.Context, a *store.Alert) error {
	if e.sink != nil {
		err := e.sink.Send(ctx, notify.Message{
			Title:    fmt.Sprintf("%s: %s", a.Kind, a.Keyword),
			Body:     a.Message,
			Severity: a.Severity,
			Keyword:  a.Keyword,
		})
		a.Sent = err == nil
	}

	if err := e.store.InsertAlert(ctx, a); err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}
	e.logger.Info("alert raised",
		"kind", a.Kind,
		"keyword", a.Keyword,
		"severity", a.Severity,
	)
	return nil
}

func meanSentiment(articles []store.Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	var sum float64
	for _, a := range articles {
		sum += a.Sentiment.Score
	}
	return sum / float64(len(articles))
}
