package pipeerr

import (
	"sync"
	"time"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 60 * time.Second

// Handler tracks retry counts per error code and computes backoff delays.
type Handler struct {
	mu         sync.Mutex
	maxRetries int
	counts     map[string]int
}

// NewHandler creates a handler allowing maxRetries attempts per error code.
func NewHandler(maxRetries int) *Handler {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Handler{
		maxRetries: maxRetries,
		counts:     make(map[string]int),
	}
}

// ShouldRetry records the error and reports whether another attempt is
// allowed. Non-recoverable errors are never retried.
func (h *Handler) ShouldRetry(err error) bool {
	pe, ok := As(err)
	if !ok || !pe.Recoverable {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.counts[pe.Code]++
	return h.counts[pe.Code] <= h.maxRetries
}

// RetryDelay returns the backoff delay for the error: the error's base
// RetryAfter doubled per prior attempt of the same code, capped at one
// minute per step.
func (h *Handler) RetryDelay(err error) time.Duration {
	pe, ok := As(err)
	if !ok {
		return 0
	}

	h.mu.Lock()
	attempts := h.counts[pe.Code]
	h.mu.Unlock()

	delay := pe.RetryAfter
	if delay == 0 {
		delay = time.Second
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// Reset clears the retry count for an error code after a success.
func (h *Handler) Reset(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.counts, code)
}

// Attempts returns the recorded attempt count for an error code.
func (h *Handler) Attempts(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[code]
}
