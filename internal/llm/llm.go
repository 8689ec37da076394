// Package llm is a thin client layer over the language model providers used
// for statement refinement. Providers only move text; prompt construction
// and output policy live in the refinement service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Request is one single-turn completion.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Response is the model's text reply.
type Response struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider completes a request against one model.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Error is a provider failure. Retryable marks throttling, overload, server
// errors and timeouts.
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryableStatus covers rate limiting and server-side failures, including
// the 529 overloaded status some providers use.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// transportError wraps a failure to get any HTTP response at all.
func transportError(provider string, err error) *Error {
	return &Error{Provider: provider, Retryable: true, Err: err}
}

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = errors.New("empty completion")
