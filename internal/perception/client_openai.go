package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lmctx/internal/logging"
)

// Inline completion parameters. Stop sequences end the continuation at the
// first line break or markup.
var (
	completionStops = []string{"\n\n", "```", "\n", "\n#", "\n// TODO", "\n<!--"}
)

const (
	completionMaxTokens = 256
	completionTemp      = 0.1
	completionPenalty   = 0.3
)

// Client talks to an OpenAI-compatible model server such as LM Studio.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a model server client.
func NewClient(cfg ClientConfig) *Client {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Chat sends a system and user prompt to /v1/chat/completions, retrying up
// to cfg.Retries times with a linearly growing pause.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	logging.APIDebug("Chat: model=%q system_len=%d user_len=%d", c.cfg.Model, len(systemPrompt), len(userPrompt))

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	reqBody := ChatRequest{
		Model: c.cfg.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	var lastErr error
	for i := 0; i <= c.cfg.Retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(i) * c.cfg.RetryBackoff):
			}
		}

		var chatResp ChatResponse
		err := c.post(ctx, "/v1/chat/completions", reqBody, &chatResp)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			logging.APIDebug("Chat: attempt %d failed: %v", i+1, err)
			continue
		}
		if chatResp.Error != nil {
			lastErr = fmt.Errorf("API error: %s", chatResp.Error.Message)
			continue
		}
		if len(chatResp.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(chatResp.Choices[0].Message.Content)
		logging.API("Chat: completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	logging.APIError("Chat: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Complete asks /v1/completions for a short continuation of prompt. It does
// not retry: a newer request is expected to supersede a failed one.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := CompletionRequest{
		Model:            c.cfg.Model,
		Prompt:           prompt,
		MaxTokens:        completionMaxTokens,
		Temperature:      completionTemp,
		Stop:             completionStops,
		PresencePenalty:  completionPenalty,
		FrequencyPenalty: completionPenalty,
	}

	var resp CompletionResponse
	if err := c.post(ctx, "/v1/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("request timed out after %v", c.cfg.Timeout)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
