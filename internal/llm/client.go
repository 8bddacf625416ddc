// Package llm is a single-turn chat completion client. Multi-turn
// conversations are driven by the caller through the history argument.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mfenderov/calscrape/internal/backoff"
	"github.com/mfenderov/calscrape/internal/errs"
	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	// FinishReasonLength marks a completion cut off at the token cap.
	FinishReasonLength = string(openai.FinishReasonLength)

	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 60 * time.Second

	// socketBaseURL is the OpenAI-compatible endpoint Docker Model Runner
	// exposes on its unix socket.
	socketBaseURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the model's reply to one request.
type Completion struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Config holds LLM client configuration.
type Config struct {
	APIKey      string         `mapstructure:"api_key"`
	BaseURL     string         `mapstructure:"base_url"`
	SocketPath  string         `mapstructure:"socket_path"` // Unix socket for Docker Model Runner
	Model       string         `mapstructure:"model"`
	MaxTokens   int            `mapstructure:"max_tokens"`
	Temperature float32        `mapstructure:"temperature"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Retry       backoff.Policy `mapstructure:"retry"`
}

// Client wraps an OpenAI-compatible chat completions API.
type Client struct {
	api    *openai.Client
	config Config
}

// New creates a new LLM client. An API key is required unless a socket
// path or custom base URL points at a local server.
func New(config Config) (*Client, error) {
	if config.APIKey == "" && config.SocketPath == "" && config.BaseURL == "" {
		return nil, errs.Config("llm.New", "API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = backoff.DefaultPolicy()
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.SocketPath != "" {
		socketPath := config.SocketPath
		oc.BaseURL = socketBaseURL
		oc.HTTPClient = &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		}
	}
	if config.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}

	return &Client{api: openai.NewClientWithConfig(oc), config: config}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.config.Model }

// MaxTokens returns the completion token cap sent with every request.
func (c *Client) MaxTokens() int { return c.config.MaxTokens }

// Complete sends the system prompt and conversation history and returns
// the model's next reply. Rate limits, server errors and transport
// failures are retried.
func (c *Client) Complete(ctx context.Context, system string, history []Message) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	return backoff.DoValue(ctx, c.config.Retry, errs.IsRetryable, func(ctx context.Context) (*Completion, error) {
		return c.complete(ctx, req)
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.LLM("llm.Complete", 0, false, errors.New("no response choices returned"))
	}

	choice := resp.Choices[0]
	slog.Debug("llm completion",
		"model", c.config.Model,
		"turns", len(req.Messages)-1,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"duration", time.Since(start))

	return &Completion{
		Text: choice.Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}

// classify maps client errors onto the error taxonomy: 429 and 5xx are
// retryable, other API statuses are not, transport failures are.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errs.LLM("llm.Complete", apiErr.HTTPStatusCode, false, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errs.LLM("llm.Complete", reqErr.HTTPStatusCode, false, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errs.LLM("llm.Complete", 0, true, fmt.Errorf("request failed: %w", err))
}
