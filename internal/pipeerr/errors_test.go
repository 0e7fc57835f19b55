package pipeerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewBrowser("launch failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "BROWSER")
	assert.Contains(t, err.Error(), "connection reset")

	// Survives another layer of wrapping
	wrapped := fmt.Errorf("pipeline aborted: %w", err)
	pe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeBrowser, pe.Code)
}

func TestRecoverability(t *testing.T) {
	assert.True(t, IsRecoverable(NewSessionExpired("stale", nil)))
	assert.True(t, IsRecoverable(NewRateLimited("429", nil)))
	assert.False(t, IsRecoverable(NewSearchIDExtraction("no id", nil)))
	assert.False(t, IsRecoverable(errors.New("plain error")))
}

func TestRetryAfterDefaults(t *testing.T) {
	assert.Equal(t, 60*time.Second, NewSessionExpired("", nil).RetryAfter)
	assert.Equal(t, 300*time.Second, NewRateLimited("", nil).RetryAfter)
	assert.Equal(t, 120*time.Second, NewApifyScraping("", nil).RetryAfter)
}

func TestWithContext(t *testing.T) {
	err := NewApifyScraping("run failed", nil).
		WithContext("run_id", "abc123").
		WithContext("status", "FAILED")

	assert.Equal(t, "abc123", err.Context["run_id"])
	assert.Equal(t, "FAILED", err.Context["status"])
}

func TestHandler_ShouldRetry(t *testing.T) {
	h := NewHandler(3)
	err := NewSessionExpired("stale", nil)

	assert.True(t, h.ShouldRetry(err))
	assert.True(t, h.ShouldRetry(err))
	assert.True(t, h.ShouldRetry(err))
	assert.False(t, h.ShouldRetry(err), "fourth attempt exceeds max retries")

	// Non-recoverable never retries and doesn't count
	assert.False(t, h.ShouldRetry(NewSearchIDExtraction("no id", nil)))
	assert.Zero(t, h.Attempts(CodeSearchIDExtraction))
}

func TestHandler_RetryDelayBackoff(t *testing.T) {
	h := NewHandler(5)
	err := NewSessionExpired("stale", nil) // base 60s

	h.ShouldRetry(err)
	assert.Equal(t, 60*time.Second, h.RetryDelay(err))

	// Doubling is capped at the max backoff
	h.ShouldRetry(err)
	assert.Equal(t, 60*time.Second, h.RetryDelay(err))
}

func TestHandler_RetryDelayGrowth(t *testing.T) {
	h := NewHandler(5)
	err := NewBrowser("flaky", nil) // base 10s

	h.ShouldRetry(err)
	assert.Equal(t, 10*time.Second, h.RetryDelay(err))
	h.ShouldRetry(err)
	assert.Equal(t, 20*time.Second, h.RetryDelay(err))
	h.ShouldRetry(err)
	assert.Equal(t, 40*time.Second, h.RetryDelay(err))
	h.ShouldRetry(err)
	assert.Equal(t, 60*time.Second, h.RetryDelay(err), "capped at max")
}

func TestHandler_Reset(t *testing.T) {
	h := NewHandler(1)
	err := NewRateLimited("429", nil)

	assert.True(t, h.ShouldRetry(err))
	assert.False(t, h.ShouldRetry(err))

	h.Reset(CodeRateLimited)
	assert.True(t, h.ShouldRetry(err))
}
