package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/newspulse/newspulse/internal/store"
	"github.com/newspulse/newspulse/pkg/llm"
)

type stubClient struct {
	content string
	err     error
	calls   int
}

func (s *stubClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func (s *stubClient) Provider() llm.Provider { return llm.OpenAI }
func (s *stubClient) Close() error           { return nil }

func TestSentiment(t *testing.T) {
	client := &stubClient{content: `{"score": 0.8, "confidence": 0.9, "label": "positive", "emotions": {"joy": 0.8, "hope": 0.4}}`}
	e := New(client, nil)

	s := e.Sentiment(context.Background(), "Good news", "Everything is great.")
	if s.Score != 0.8 || s.Label != store.LabelPositive {
		t.Errorf("got %+v, want score 0.8 positive", s)
	}
	if len(s.Emotions) != 2 || s.Emotions["joy"] != 0.8 || s.Emotions["hope"] != 0.4 {
		t.Errorf("emotions = %v", s.Emotions)
	}
}

func TestSentimentFallbackOnError(t *testing.T) {
	client := &stubClient{err: errors.New("provider down")}
	e := New(client, nil)

	s := e.Sentiment(context.Background(), "t", "c")
	if s.Score != 0 || s.Confidence != 0.1 || s.Label != store.LabelNeutral {
		t.Errorf("fallback = %+v, want neutral {0, 0.1}", s)
	}
}

func TestSentimentFallbackOnGarbage(t *testing.T) {
	client := &stubClient{content: "I cannot analyze this article."}
	e := New(client, nil)

	s := e.Sentiment(context.Background(), "t", "c")
	if s.Label != store.LabelNeutral || s.Confidence != 0.1 {
		t.Errorf("fallback = %+v, want neutral", s)
	}
}

func TestSentimentClampsOutOfRange(t *testing.T) {
	client := &stubClient{content: `{"score": 3.5, "confidence": 1.7, "label": "positive", "emotions": {"joy": 1.4, "fear": -0.2}}`}
	e := New(client, nil)

	s := e.Sentiment(context.Background(), "t", "c")
	if s.Score != 1 {
		t.Errorf("score = %v, want clamped to 1", s.Score)
	}
	if s.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", s.Confidence)
	}
	if s.Emotions["joy"] != 1 || s.Emotions["fear"] != 0 {
		t.Errorf("emotions = %v, want each clamped to [0, 1]", s.Emotions)
	}
}

func TestSentimentLabelDerivedFromScore(t *testing.T) {
	client := &stubClient{content: `{"score": -0.6, "confidence": 0.8, "label": "bad vibes"}`}
	e := New(client, nil)

	s := e.Sentiment(context.Background(), "t", "c")
	if s.Label != store.LabelNegative {
		t.Errorf("label = %q, want negative derived from score", s.Label)
	}
}

func TestKeywordsDedupAndCap(t *testing.T) {
	client := &stubClient{content: `{"keywords": ["AI", "ai", "  Climate ", "energy", "policy"]}`}
	e := New(client, nil)

	kws := e.Keywords(context.Background(), "t", "c", 3)
	want := []string{"ai", "climate", "energy"}
	if len(kws) != len(want) {
		t.Fatalf("keywords = %v, want %v", kws, want)
	}
	for i := range want {
		if kws[i] != want[i] {
			t.Errorf("keywords[%d] = %q, want %q", i, kws[i], want[i])
		}
	}
}

func TestReadabilityFallback(t *testing.T) {
	client := &stubClient{err: errors.New("timeout")}
	e := New(client, nil)

	if got := e.Readability(context.Background(), "text"); got != 50 {
		t.Errorf("readability fallback = %d, want 50", got)
	}
}

func TestReadabilityClamped(t *testing.T) {
	client := &stubClient{content: `{"score": 140}`}
	e := New(client, nil)

	if got := e.Readability(context.Background(), "text"); got != 100 {
		t.Errorf("readability = %d, want 100", got)
	}
}

func TestTranslateFallsBackToOriginal(t *testing.T) {
	client := &stubClient{err: errors.New("nope")}
	e := New(client, nil)

	title, summary := e.Translate(context.Background(), "Titel", "Zusammenfassung", "de")
	if title != "Titel" || summary != "Zusammenfassung" {
		t.Errorf("got (%q, %q), want originals", title, summary)
	}
}

func TestEntities(t *testing.T) {
	client := &stubClient{content: `{"people": ["Ada Lovelace"], "organizations": ["ACME"], "locations": [], "technologies": ["Go"], "other": []}`}
	e := New(client, nil)

	ents := e.Entities(context.Background(), "t", "c")
	if len(ents.People) != 1 || ents.People[0] != "Ada Lovelace" {
		t.Errorf("people = %v", ents.People)
	}
	if len(ents.Technologies) != 1 || ents.Technologies[0] != "Go" {
		t.Errorf("technologies = %v", ents.Technologies)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := "größer" // the ö is two bytes, starting at offset 2
	got := truncate(s, 3)
	if got != "gr" {
		t.Errorf("truncate(%q, 3) = %q, want the cut moved off the rune boundary", s, got)
	}
	if truncate(s, len(s)) != s {
		t.Error("truncate must not touch strings within the limit")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced with tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose prefix", `Here is the result: {"a": 1} hope that helps`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace in string", `{"a": "}{"}`, `{"a": "}{"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(extractJSON(tt.in)); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
