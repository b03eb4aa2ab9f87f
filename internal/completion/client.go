// Package completion sends single-turn prompts to a hosted chat model over
// the OpenAI-compatible API that Gemini, OpenAI and Ollama all expose.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

// Provider base URLs.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	OllamaBaseURL = "http://localhost:11434/v1"
)

var (
	// ErrDisabled is returned when no provider is configured.
	ErrDisabled = errors.New("text completion is disabled")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

var (
	_ ports.Completer = (*Client)(nil)
	_ ports.Completer = Disabled{}
)

// Config holds the provider and generation settings.
type Config struct {
	Provider    string // gemini, openai or ollama
	APIKey      string
	BaseURL     string // overrides the provider default
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is safe for concurrent use. Every call starts a fresh conversation.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *applog.Logger
}

func New(cfg Config, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Nop()
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("completion model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case "gemini":
			baseURL = GeminiBaseURL
		case "ollama":
			baseURL = OllamaBaseURL
		case "openai":
			// go-openai default
		default:
			return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
		}
	}

	apiKey := cfg.APIKey
	if apiKey == "" && cfg.Provider == "ollama" {
		// Ollama ignores the key but the header must be present.
		apiKey = "ollama"
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Transport: http.DefaultTransport}

	return &Client{
		api:    openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.WithComponent(applog.ComponentCompletion),
	}, nil
}

// Complete sends prompt as the only user message and returns the reply text.
// The configured timeout bounds the whole call; there are no retries.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(c.cfg.Temperature),
		TopP:        float32(c.cfg.TopP),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%s completion failed with status %d: %w", c.cfg.Provider, apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("%s completion: %w", c.cfg.Provider, err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.InfoContext(ctx, "Completion received",
		applog.FieldOperation, applog.OpComplete,
		"model", c.cfg.Model,
		"prompt_chars", len(prompt),
		"response_chars", len(text),
		"total_tokens", resp.Usage.TotalTokens,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return text, nil
}

// Disabled is the Completer used when COMPLETION_PROVIDER=none.
type Disabled struct{}

func (Disabled) Complete(context.Context, string) (string, error) { return "", ErrDisabled }
