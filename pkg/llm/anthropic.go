package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// anthropicClient talks to the Anthropic Messages API.
type anthropicClient struct {
	cfg  Config
	http *http.Client
	base string
}

func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	base := "https://api.anthropic.com/v1"
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	c := &anthropicClient{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	return wrapWithRetry(c, cfg.MaxRetries), nil
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *anthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	// The Messages API takes the system prompt out of band.
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role != "system" {
			messages = append(messages, m)
		}
	}

	maxTokens := pick(req.MaxTokens, c.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	system := req.System
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with valid JSON only."
	}

	aReq := anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: pickFloat(req.Temperature, c.cfg.Temperature),
	}

	body, err := json.Marshal(aReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var aResp anthropicResponse
	if err := json.Unmarshal(respBody, &aResp); err != nil {
		return nil, fmt.Errorf("unmarshal response (%d): %w", httpResp.StatusCode, err)
	}
	if aResp.Error != nil {
		return nil, fmt.Errorf("Anthropic API error (%s): %s", aResp.Error.Type, aResp.Error.Message)
	}
	if len(aResp.Content) == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	var text string
	for _, block := range aResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Content:   text,
		TokensIn:  aResp.Usage.InputTokens,
		TokensOut: aResp.Usage.OutputTokens,
		Cost:      EstimateCost(aResp.Model, aResp.Usage.InputTokens, aResp.Usage.OutputTokens),
		Model:     aResp.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *anthropicClient) Provider() Provider { return Anthropic }
func (c *anthropicClient) Close() error       { return nil }
