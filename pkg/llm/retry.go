package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// retryClient decorates a Client with exponential-backoff retries on
// transient failures.
type retryClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
}

func wrapWithRetry(client Client, maxRetries int) Client {
	if maxRetries <= 1 {
		return client
	}
	return &retryClient{
		inner:      client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
	}
}

func (r *retryClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		slog.Warn("LLM request failed, retrying",
			"attempt", attempt+1,
			"max_retries", r.maxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

func (r *retryClient) Provider() Provider { return r.inner.Provider() }
func (r *retryClient) Close() error       { return r.inner.Close() }

// isRetryable reports whether the error looks like a rate limit, server
// error, or timeout worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, keyword := range []string{"429", "500", "502", "503", "529", "timeout", "connection reset", "overloaded"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
