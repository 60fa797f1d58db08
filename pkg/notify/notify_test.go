package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeNotifier struct {
	ch   Channel
	err  error
	sent []Message
}

func (f *fakeNotifier) Send(ctx context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) Channel() Channel { return f.ch }

func TestDispatcherFanOut(t *testing.T) {
	a := &fakeNotifier{ch: ChannelStdout}
	b := &fakeNotifier{ch: ChannelWebhook}
	d := NewDispatcher(nil)
	d.Register(a)
	d.Register(b)

	msg := Message{Title: "volume spike", Severity: "high"}
	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts = %d, %d, want 1 each", len(a.sent), len(b.sent))
	}
}

func TestDispatcherPartialFailureIsSuccess(t *testing.T) {
	ok := &fakeNotifier{ch: ChannelStdout}
	broken := &fakeNotifier{ch: ChannelWebhook, err: errors.New("503")}
	d := NewDispatcher(nil)
	d.Register(ok)
	d.Register(broken)

	if err := d.Send(context.Background(), Message{Title: "t"}); err != nil {
		t.Errorf("partial delivery should not error, got %v", err)
	}
}

func TestDispatcherAllFailed(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&fakeNotifier{ch: ChannelWebhook, err: errors.New("down")})

	if err := d.Send(context.Background(), Message{Title: "t"}); err == nil {
		t.Error("expected error when every channel fails")
	}
}

func TestDispatcherNoChannels(t *testing.T) {
	d := NewDispatcher(nil)
	if err := d.Send(context.Background(), Message{Title: "t"}); err != nil {
		t.Errorf("no channels should be a no-op, got %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("missing custom header")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
	})
	msg := Message{Title: "sentiment shift", Severity: "medium", Keyword: "energy"}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if got.Title != msg.Title || got.Keyword != "energy" {
		t.Errorf("server received %+v", got)
	}
}

func TestWebhookNotifierBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	if err := n.Send(context.Background(), Message{}); err == nil {
		t.Error("expected error on 502")
	}
}

func TestStdoutNotifier(t *testing.T) {
	var sb strings.Builder
	n := NewStdoutNotifier(&sb)
	if err := n.Send(context.Background(), Message{Title: "spike", Severity: "high", Body: "details"}); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "[high] spike") || !strings.Contains(out, "details") {
		t.Errorf("output = %q", out)
	}
}
