package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/config"
)

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{"rate limit exceeded, retry in 7.5s", 7500 * time.Millisecond},
		{`RESOURCE_EXHAUSTED: {"retryDelay":"21s"}`, 21 * time.Second},
		{"Retry-After: 30", 30 * time.Second},
		{"no hint here", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRetryDelay(tt.msg), tt.msg)
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o"}, time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.GetModel())

	c, err = New(config.LLMConfig{Provider: "gemini", APIKey: "k"}, time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.GetModel())

	_, err = New(config.LLMConfig{Provider: "llama"}, time.Minute, 0)
	require.Error(t, err)
}

func TestOpenAIClient_CompleteWithSystem(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  {\"action\":\"done\"}  "}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o", Temperature: 0.2})
	out, err := c.CompleteWithSystem(context.Background(), "you are a browser agent", "what next?")
	require.NoError(t, err)

	assert.Equal(t, `{"action":"done"}`, out, "response is trimmed")
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, 0.2, gotReq.Temperature, "configured temperature reaches the request")
}

func TestOpenAIClient_NoSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIClient_RetriesOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "recovered"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := c.CompleteWithSystem(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, attempts)
}

func TestOpenAIClient_FailsFastOn400(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.CompleteWithSystem(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "client errors are not retried")
}

func TestOpenAIClient_NoAPIKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{})
	_, err := c.CompleteWithSystem(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
