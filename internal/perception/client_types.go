package perception

import (
	"context"
	"time"

	"lmctx/internal/config"
)

const defaultSystemPrompt = "You are a helpful code assistant. Respond with only code. No comments in code."

// ChatClient sends a chat completion and returns the reply text.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Completer returns a raw text continuation of a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientConfig holds configuration for the model server client.
type ClientConfig struct {
	Endpoint     string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// ClientConfigFrom maps settings onto client configuration.
func ClientConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		Endpoint:     cfg.Endpoint,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		Timeout:      cfg.GetTimeout(),
		Retries:      cfg.Retries,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the subset of the chat completion response lmctx reads.
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	Model            string   `json:"model,omitempty"`
	Prompt           string   `json:"prompt"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	Stream           bool     `json:"stream"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
}

// CompletionResponse is the subset of the completion response lmctx reads.
type CompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the error object OpenAI-compatible servers return.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}
