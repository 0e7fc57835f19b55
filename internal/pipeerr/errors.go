// Package pipeerr defines the typed error hierarchy for the prospect
// pipeline. Every failure carries a stable code, optional context, and
// recoverability metadata so the pipeline can decide whether and when
// to retry.
package pipeerr

import (
	"errors"
	"fmt"
	"time"
)

// Error codes.
const (
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeCloudflareBlocked  = "CLOUDFLARE_BLOCKED"
	CodeSearchIDExtraction = "SEARCH_ID_EXTRACTION"
	CodeDomainFilter       = "DOMAIN_FILTER"
	CodeApifyScraping      = "APIFY_SCRAPING"
	CodeBrowser            = "BROWSER"
	CodeConfig             = "CONFIG"
	CodeAgent              = "AGENT"
)

// Error is a pipeline error with retry metadata.
type Error struct {
	Code        string
	Message     string
	Context     map[string]interface{}
	Recoverable bool
	RetryAfter  time.Duration
	Err         error // wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewSessionExpired reports an expired or invalid Apollo session.
func NewSessionExpired(msg string, cause error) *Error {
	return &Error{
		Code:        CodeSessionExpired,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  60 * time.Second,
		Err:         cause,
	}
}

// NewRateLimited reports Apollo rate limiting.
func NewRateLimited(msg string, cause error) *Error {
	return &Error{
		Code:        CodeRateLimited,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  300 * time.Second,
		Err:         cause,
	}
}

// NewCloudflareBlocked reports a Cloudflare challenge page.
func NewCloudflareBlocked(msg string, cause error) *Error {
	return &Error{
		Code:        CodeCloudflareBlocked,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  60 * time.Second,
		Err:         cause,
	}
}

// NewSearchIDExtraction reports a failure to extract the search list ID.
func NewSearchIDExtraction(msg string, cause error) *Error {
	return &Error{
		Code:        CodeSearchIDExtraction,
		Message:     msg,
		Recoverable: false,
		Err:         cause,
	}
}

// NewDomainFilter reports a failure to apply the company domain filter.
func NewDomainFilter(msg string, cause error) *Error {
	return &Error{
		Code:        CodeDomainFilter,
		Message:     msg,
		Recoverable: false,
		Err:         cause,
	}
}

// NewApifyScraping reports an Apify actor or dataset failure.
func NewApifyScraping(msg string, cause error) *Error {
	return &Error{
		Code:        CodeApifyScraping,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  120 * time.Second,
		Err:         cause,
	}
}

// NewBrowser reports a browser launch or control failure.
func NewBrowser(msg string, cause error) *Error {
	return &Error{
		Code:        CodeBrowser,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  10 * time.Second,
		Err:         cause,
	}
}

// NewConfig reports an invalid configuration.
func NewConfig(msg string, cause error) *Error {
	return &Error{
		Code:    CodeConfig,
		Message: msg,
		Err:     cause,
	}
}

// NewAgent reports a navigation agent failure.
func NewAgent(msg string, cause error) *Error {
	return &Error{
		Code:        CodeAgent,
		Message:     msg,
		Recoverable: true,
		RetryAfter:  30 * time.Second,
		Err:         cause,
	}
}

// As extracts a pipeline *Error from an error chain.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRecoverable reports whether the error chain contains a recoverable
// pipeline error. Unknown errors are treated as non-recoverable.
func IsRecoverable(err error) bool {
	if pe, ok := As(err); ok {
		return pe.Recoverable
	}
	return false
}
