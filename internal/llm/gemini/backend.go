// Package gemini implements an llm.Backend on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spigell/job-agent/internal/llm"
)

const (
	// Provider is the provider name reported in logs and metrics.
	Provider     = "gemini"
	defaultModel = "gemini-2.5-flash"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Backend sends prompts to the Gemini API.
type Backend struct {
	models contentGenerator
	model  string
}

// New creates a Backend configured for the Gemini API.
func New(ctx context.Context, apiKey, model string) (*Backend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newBackend(client.Models, model), nil
}

func newBackend(models contentGenerator, model string) *Backend {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &Backend{models: models, model: model}
}

func (b *Backend) Provider() string { return Provider }

func (b *Backend) Model() string {
	if b == nil {
		return ""
	}
	return b.model
}

// Generate implements llm.Backend.
func (b *Backend) Generate(ctx context.Context, req llm.Request) (string, error) {
	if b == nil || b.models == nil {
		return "", errors.New("gemini backend is not initialized")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", classify(err)
	}

	output := responseText(resp)
	if output == "" {
		return "", llm.Transient(errors.New("gemini api returned empty response"))
	}
	return output, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// only the first candidate with content is used
		if builder.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}

// classify maps SDK errors onto the llm retry taxonomy.
func classify(err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return llm.Transient(fmt.Errorf("generate content: %w", err))
		}
		return fmt.Errorf("generate content: %w", err)
	}

	status := strings.ToUpper(strings.TrimSpace(apiErr.Status))
	switch {
	case apiErr.Code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return &llm.RateLimitError{RetryAfter: retryAfter(apiErr), Err: err}
	case apiErr.Code >= http.StatusInternalServerError,
		status == "UNAVAILABLE", status == "INTERNAL", status == "DEADLINE_EXCEEDED":
		return llm.Transient(fmt.Errorf("generate content: %w", err))
	default:
		return fmt.Errorf("generate content: %w", err)
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

var retryMessagePattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|second|seconds)\b`)

// retryAfter reads the server hint from a google.rpc.RetryInfo detail or,
// failing that, from the error message.
func retryAfter(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		typ, _ := detail["@type"].(string)
		if !strings.HasSuffix(typ, "google.rpc.RetryInfo") {
			continue
		}
		if raw, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(raw); err == nil {
				return d
			}
		}
	}

	match := retryMessagePattern.FindStringSubmatch(apiErr.Message)
	if len(match) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(match[2], "ms") {
		return time.Duration(value * float64(time.Millisecond))
	}
	return time.Duration(value * float64(time.Second))
}
