package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError carries provider, model and HTTP status context for a
// failed model call, preserving the cause for errors.Is/As.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	b.WriteString(": ")
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(e.Cause.Error())
	default:
		b.WriteString("request failed")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient: rate limits,
// overload, server errors, timeouts and connection drops.
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504, 529:
		return true
	case 400, 401, 403, 404, 413, 422:
		return false
	}
	return retryableMessage(errString(e.Cause) + " " + e.Message + " " + e.Code)
}

// IsRetryable classifies any error from a model call.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return retryableMessage(err.Error())
}

func retryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"rate_limit", "rate limit", "too many requests", "429",
		"overloaded", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
