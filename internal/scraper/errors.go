package scraper

import (
	"errors"
	"fmt"
)

// Kind classifies a scrape failure. It drives both retry decisions and the
// error message shown to callers.
type Kind string

const (
	// KindScraping covers transient failures: navigation errors, timeouts,
	// incomplete pages. Retryable.
	KindScraping Kind = "scraping"
	// KindNotFound means the product page returned 404. Not retryable.
	KindNotFound Kind = "not_found"
	// KindRateLimit means the marketplace returned 429. Retryable after
	// backoff.
	KindRateLimit Kind = "rate_limit"
	// KindCaptcha means a CAPTCHA challenge page was served. Not retryable
	// within a single scrape; the proxy is penalized instead.
	KindCaptcha Kind = "captcha"
	// KindBlockPage means an explicit anti-bot block page was served. Not
	// retryable.
	KindBlockPage Kind = "block_page"
)

// Error is the failure type for all scraping operations.
type Error struct {
	Kind    Kind
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("[%s] %s", e.Source, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindScraping, KindRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable scrape error. Unknown error
// types are treated as non-retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

func newError(kind Kind, source, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, source string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, Message: fmt.Sprintf(format, args...), Err: err}
}
