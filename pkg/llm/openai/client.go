// Package openai provides an LLM client for OpenAI and OpenAI-compatible chat
// completion endpoints (DeepSeek, Qwen compatible mode, Ollama's /v1 API).
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hibiki-ai/hibiki-go/pkg/llm"
)

// Default base URLs of OpenAI-compatible providers.
const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	QwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	OllamaBaseURL   = "http://localhost:11434/v1"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o"

// ErrNoChoices is returned when the API answers without any completion choice.
var ErrNoChoices = errors.New("llm generation failed: no choices returned from OpenAI API")

// Client talks to one model of an OpenAI compatible chat completions API.
// It implements llm.Provider.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for an OpenAI compatible model.
// APIKey: API key (Ollama accepts any non-empty value)
// Model: Model name to use, defaults to DefaultModel
// BaseURL: API base URL, one of the *BaseURL constants or empty for OpenAI
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a client for cfg.Model at cfg.BaseURL.
//
// Example:
//
//	planner, _ := openai.NewClient(&openai.Config{
//	    APIKey:  os.Getenv("LLM_API_KEY"),
//	    Model:   "deepseek-chat",
//	    BaseURL: openai.DeepSeekBaseURL,
//	})
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{llm.UserMessage(prompt)}, opts...)
}

// GenerateWithMessages sends messages to the chat completions endpoint and
// returns the content of the first choice.
//
// API failures are wrapped with the model name; a response without choices
// returns ErrNoChoices.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	// The SDK drops a zero temperature as omitempty, which the API reads as 1.
	temperature := float32(options.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: temperature,
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.model, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

// Close is retained for interface compatibility; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}

func toChatMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return out
}
