// Package openai implements an llm.Backend for OpenAI-compatible chat
// completion APIs such as DeepSeek and OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spigell/job-agent/internal/llm"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"

	DeepSeekBaseURL = "https://api.deepseek.com"
)

// Config holds the chat completion provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	// HTTPClient overrides the default HTTP client, mostly for tests.
	HTTPClient *http.Client
}

// Backend sends chat completion requests through go-openai.
type Backend struct {
	client   *openai.Client
	model    string
	provider string
}

// New creates a chat completion backend. Provider defaults to deepseek, which
// also selects the DeepSeek base URL and model when they are not set.
func New(cfg Config) (*Backend, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderDeepSeek
	}

	clientCfg := openai.DefaultConfig(apiKey)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" && provider == ProviderDeepSeek {
		baseURL = DeepSeekBaseURL
	}
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel(provider)
	}

	return &Backend{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		provider: provider,
	}, nil
}

func defaultModel(provider string) string {
	if provider == ProviderDeepSeek {
		return "deepseek-chat"
	}
	return openai.GPT4oMini
}

func (b *Backend) Provider() string { return b.provider }

func (b *Backend) Model() string { return b.model }

// Generate implements llm.Backend.
func (b *Backend) Generate(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", llm.Transient(errors.New("chat completion returned no choices"))
	}
	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", llm.Transient(errors.New("chat completion returned empty content"))
	}
	return output, nil
}

// classify maps go-openai errors onto the llm retry taxonomy.
func classify(err error) error {
	status := 0
	detail := ""

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		detail = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		detail = extractDetail(reqErr.Body)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			return llm.Transient(fmt.Errorf("chat completion: %w", err))
		}
		return fmt.Errorf("chat completion: %w", err)
	}

	wrapped := fmt.Errorf("chat completion error %d: %w", status, err)
	if detail != "" {
		wrapped = fmt.Errorf("chat completion error %d: %s: %w", status, detail, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &llm.RateLimitError{Err: wrapped}
	case status >= http.StatusInternalServerError, status == http.StatusRequestTimeout:
		return llm.Transient(wrapped)
	default:
		return wrapped
	}
}

// extractDetail pulls a human readable message out of a raw error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error.Message
}
