package notify

import (
	"context"
	"fmt"
	"io"
	"os"
)

// StdoutNotifier prints alerts to a writer, os.Stdout by default. Used in
// local runs and as the fallback when no webhook is configured.
type StdoutNotifier struct {
	w io.Writer
}

func NewStdoutNotifier(w io.Writer) *StdoutNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutNotifier{w: w}
}

func (s *StdoutNotifier) Channel() Channel { return ChannelStdout }

func (s *StdoutNotifier) Send(_ context.Context, msg Message) error {
	_, err := fmt.Fprintf(s.w, "[%s] %s\n%s\n", msg.Severity, msg.Title, msg.Body)
	return err
}
