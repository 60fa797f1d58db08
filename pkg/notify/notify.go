// Package notify delivers triggered alerts to outbound channels. The
// pipeline treats delivery as best effort: a failing channel is logged
// and skipped, never blocking alert persistence.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Channel identifies a delivery mechanism.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelStdout  Channel = "stdout"
)

// Message is the channel-independent alert payload.
type Message struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
	Keyword  string `json:"keyword,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Notifier sends a message over one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Channel() Channel
}

// Dispatcher fans a message out to every registered channel.
type Dispatcher struct {
	notifiers map[Channel]Notifier
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifiers: make(map[Channel]Notifier),
		logger:    logger,
	}
}

// Register adds a notifier. A second notifier for the same channel
// replaces the first.
func (d *Dispatcher) Register(n Notifier) {
	d.notifiers[n.Channel()] = n
}

func (d *Dispatcher) Channels() int { return len(d.notifiers) }

// Send delivers msg to all registered channels. It returns an error only
// when every channel failed; partial delivery counts as success.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if len(d.notifiers) == 0 {
		return nil
	}

	failed := 0
	for ch, n := range d.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			d.logger.Error("alert delivery failed", "channel", ch, "title", msg.Title, "error", err)
			failed++
			continue
		}
		d.logger.Info("alert delivered", "channel", ch, "title", msg.Title)
	}
	if failed == len(d.notifiers) {
		return fmt.Errorf("all %d channels failed", failed)
	}
	return nil
}
