// Package llm provides the language model client used for intent
// classification and transaction extraction, with retry logic, rate limiting
// and defensive parsing of model output.
package llm

import "context"

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends a text prompt and returns the raw model reply.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithImage sends a prompt plus a base64-encoded image.
	CompleteWithImage(ctx context.Context, prompt, imageBase64, mimetype string) (string, error)
	// CompleteWithAudio sends a prompt plus base64-encoded audio.
	CompleteWithAudio(ctx context.Context, prompt, audioBase64, format string) (string, error)
}

// Config holds provider configuration.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
}
