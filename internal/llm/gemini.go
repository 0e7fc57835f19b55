package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"prospectpipe/internal/logging"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// GeminiClient implements Client using the Google GenAI SDK.
type GeminiClient struct {
	cfg GeminiConfig

	mu          sync.Mutex
	client      *genai.Client
	lastRequest time.Time
}

// NewGeminiClient creates a new Gemini client. The SDK client is created
// lazily on first use so construction never needs a context.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &GeminiClient{cfg: cfg}
}

func (c *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: c.cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	client, err := c.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	startTime := time.Now()
	logging.LLMDebug("[Gemini] CompleteWithSystem: model=%s system_len=%d user_len=%d", c.cfg.Model, len(systemPrompt), len(userPrompt))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.cfg.Temperature)),
	}
	if strings.TrimSpace(systemPrompt) != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	// Retry loop honoring provider-suggested delays on quota errors
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			delay := time.Duration(1<<uint(i-1)) * time.Second
			if lastErr != nil {
				if hinted := ParseRetryDelay(lastErr.Error()); hinted > delay {
					delay = hinted
				}
			}
			time.Sleep(delay)
		}

		result, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			msg := err.Error()
			if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
				strings.Contains(msg, "503") || strings.Contains(msg, "UNAVAILABLE") {
				lastErr = err
				continue
			}
			return "", fmt.Errorf("GenAI generate failed: %w", err)
		}

		text := strings.TrimSpace(result.Text())
		if text == "" {
			return "", fmt.Errorf("no completion returned")
		}
		logging.LLM("[Gemini] CompleteWithSystem: completed in %v response_len=%d", time.Since(startTime), len(text))
		return text, nil
	}

	logging.LLMError("[Gemini] CompleteWithSystem: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.cfg.Model
}
