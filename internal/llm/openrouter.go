package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fintalk/fintalk/internal/common"
)

const defaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

// openRouterClient implements Client against an OpenAI-compatible
// chat-completions endpoint.
type openRouterClient struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newOpenRouterClient creates a new OpenRouter API client.
func newOpenRouterClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "openai/gpt-4o-mini"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	return &openRouterClient{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		limiter:     newRateLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Complete sends a text prompt.
func (c *openRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	content := []map[string]any{
		{"type": "text", "text": prompt},
	}
	return c.call(ctx, content)
}

// CompleteWithImage sends a prompt plus a base64-encoded image.
func (c *openRouterClient) CompleteWithImage(ctx context.Context, prompt, imageBase64, mimetype string) (string, error) {
	if mimetype == "" {
		mimetype = "image/jpeg"
	}
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{
			"type": "image_url",
			"image_url": map[string]string{
				"url": fmt.Sprintf("data:%s;base64,%s", mimetype, imageBase64),
			},
		},
	}
	return c.call(ctx, content)
}

// CompleteWithAudio sends a prompt plus base64-encoded audio.
func (c *openRouterClient) CompleteWithAudio(ctx context.Context, prompt, audioBase64, format string) (string, error) {
	if format == "" {
		format = "ogg"
	}
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{
			"type": "input_audio",
			"input_audio": map[string]string{
				"data":   audioBase64,
				"format": format,
			},
		},
	}
	return c.call(ctx, content)
}

func (c *openRouterClient) call(ctx context.Context, content []map[string]any) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": content,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrLLMUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", common.ErrRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", common.ErrLLMUnavailable, resp.StatusCode, string(body))
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", common.ErrMalformedReply)
	}

	return response.Choices[0].Message.Content, nil
}

// chatCompletionResponse mirrors the OpenAI-compatible response structure.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
