// Package llm provides the LLM provider clients that drive the navigation
// agent. Providers share one small interface; the OpenAI client speaks the
// chat-completions wire format directly, Gemini goes through the official
// SDK.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"prospectpipe/internal/config"
)

// Client is the minimal completion interface the agent needs.
type Client interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GetModel returns the current model.
	GetModel() string
}

// New creates a client for the configured provider. The temperature comes
// from the agent config; both providers default it to 0 for deterministic
// navigation decisions.
func New(cfg config.LLMConfig, timeout time.Duration, temperature float64) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: temperature,
		}), nil
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: temperature,
		}), nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
}

// retryDelayPatterns match the delay hints providers embed in 429 and
// RESOURCE_EXHAUSTED messages, e.g. "retry in 7.5s" or "retryDelay":"21s".
var retryDelayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry\s+in\s+([0-9.]+)\s*s`),
	regexp.MustCompile(`(?i)retryDelay["':\s]+([0-9.]+)s`),
	regexp.MustCompile(`(?i)retry[- ]after["':\s]+([0-9.]+)`),
}

// ParseRetryDelay extracts a provider-suggested retry delay from an error
// message. Returns 0 when no hint is present.
func ParseRetryDelay(msg string) time.Duration {
	for _, p := range retryDelayPatterns {
		if m := p.FindStringSubmatch(msg); len(m) == 2 {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}
