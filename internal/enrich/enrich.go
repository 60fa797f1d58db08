// Package enrich derives structured signals from raw article text using
// an LLM: sentiment, named entities, keywords, readability and, when the
// source language is not English, a translation of the title and summary.
//
// Every operation degrades gracefully. A provider error or an unparseable
// response yields a neutral fallback value rather than an error, so a flaky
// model never blocks ingestion.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/newspulse/newspulse/internal/store"
	"github.com/newspulse/newspulse/pkg/llm"
)

const (
	// maxInputChars caps how much article body we hand to the model per
	// request. Long-tail articles get truncated, not rejected.
	maxInputChars = 6000

	// requestInterval spaces out LLM calls process-wide so bursty cycles
	// stay inside provider rate limits.
	requestInterval = 100 * time.Millisecond

	fallbackReadability = 50
)

// limiter is shared by every Enricher in the process.
var limiter = rate.NewLimiter(rate.Every(requestInterval), 1)

// Enricher runs the per-article analysis operations.
type Enricher struct {
	client llm.Client
	logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{client: client, logger: logger}
}

// Sentiment classifies the emotional tone of the text. On any failure it
// returns the neutral fallback (score 0, confidence 0.1) so callers can
// persist the article regardless.
func (e *Enricher) Sentiment(ctx context.Context, title, content string) store.Sentiment {
	fallback := store.Sentiment{Score: 0, Confidence: 0.1, Label: store.LabelNeutral}

	raw, err := e.generate(ctx, sentimentPrompt(title, truncate(content, maxInputChars)))
	if err != nil {
		e.logger.Warn("sentiment analysis failed, using neutral fallback", "error", err)
		return fallback
	}

	var parsed struct {
		Score      float64            `json:"score"`
		Confidence float64            `json:"confidence"`
		Label      string             `json:"label"`
		Emotions   map[string]float64 `json:"emotions"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		e.logger.Warn("sentiment response unparseable, using neutral fallback", "error", err)
		return fallback
	}

	for emotion, strength := range parsed.Emotions {
		parsed.Emotions[emotion] = clamp(strength, 0, 1)
	}
	s := store.Sentiment{
		Score:      clamp(parsed.Score, -1, 1),
		Confidence: clamp(parsed.Confidence, 0, 1),
		Label:      normalizeLabel(parsed.Label, parsed.Score),
		Emotions:   parsed.Emotions,
	}
	return s
}

// Entities extracts named entities grouped by kind. Failures yield empty
// groups.
func (e *Enricher) Entities(ctx context.Context, title, content string) store.Entities {
	raw, err := e.generate(ctx, entitiesPrompt(title, truncate(content, maxInputChars)))
	if err != nil {
		e.logger.Warn("entity extraction failed", "error", err)
		return store.Entities{}
	}

	var parsed store.Entities
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		e.logger.Warn("entity response unparseable", "error", err)
		return store.Entities{}
	}
	return parsed
}

// Keywords returns up to max topical keywords for the text, lowercased and
// deduplicated. Failures yield an empty slice.
func (e *Enricher) Keywords(ctx context.Context, title, content string, max int) []string {
	if max <= 0 {
		max = 10
	}

	raw, err := e.generate(ctx, keywordsPrompt(title, truncate(content, maxInputChars), max))
	if err != nil {
		e.logger.Warn("keyword extraction failed", "error", err)
		return nil
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		e.logger.Warn("keyword response unparseable", "error", err)
		return nil
	}

	seen := make(map[string]bool, len(parsed.Keywords))
	out := make([]string, 0, len(parsed.Keywords))
	for _, kw := range parsed.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
		if len(out) == max {
			break
		}
	}
	return out
}

// Readability scores how accessible the text is on a 0-100 scale, higher
// meaning easier to read. Failures yield the midpoint 50.
func (e *Enricher) Readability(ctx context.Context, content string) int {
	raw, err := e.generate(ctx, readabilityPrompt(truncate(content, maxInputChars)))
	if err != nil {
		e.logger.Warn("readability scoring failed", "error", err)
		return fallbackReadability
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		e.logger.Warn("readability response unparseable", "error", err)
		return fallbackReadability
	}
	return int(clamp(parsed.Score, 0, 100))
}

// Translate renders title and summary into English. On failure the
// originals come back unchanged.
func (e *Enricher) Translate(ctx context.Context, title, summary, lang string) (string, string) {
	raw, err := e.generate(ctx, translatePrompt(title, summary, lang))
	if err != nil {
		e.logger.Warn("translation failed, keeping original text", "lang", lang, "error", err)
		return title, summary
	}

	var parsed struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		e.logger.Warn("translation response unparseable", "lang", lang, "error", err)
		return title, summary
	}
	if parsed.Title == "" {
		parsed.Title = title
	}
	if parsed.Summary == "" {
		parsed.Summary = summary
	}
	return parsed.Title, parsed.Summary
}

func (e *Enricher) generate(ctx context.Context, prompt string) (string, error) {
	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := e.client.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		JSONMode: true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func normalizeLabel(label string, score float64) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case store.LabelPositive:
		return store.LabelPositive
	case store.LabelNegative:
		return store.LabelNegative
	case store.LabelNeutral:
		return store.LabelNeutral
	}
	// Model returned something off-vocabulary, derive from the score.
	switch {
	case score > 0.1:
		return store.LabelPositive
	case score < -0.1:
		return store.LabelNegative
	default:
		return store.LabelNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate cuts s to at most n bytes, backing up so a multi-byte rune is
// never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
