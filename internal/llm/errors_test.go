package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nao-labs/nao-agent/pkg/models"
)

func usageSample() models.Usage {
	return models.Usage{InputTokens: 100, OutputTokens: 25}
}

func TestProviderErrorRetryableByStatus(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{529, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tc := range cases {
		err := &ProviderError{Provider: "anthropic", StatusCode: tc.status}
		if got := err.Retryable(); got != tc.want {
			t.Errorf("status %d: Retryable = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestIsRetryableByMessage(t *testing.T) {
	if !IsRetryable(errors.New("request failed: rate_limit_error")) {
		t.Error("rate limit should be retryable")
	}
	if !IsRetryable(errors.New("dial tcp: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if IsRetryable(errors.New("invalid_request_error: model not found")) {
		t.Error("invalid request should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil error is never retryable")
	}
}

func TestIsRetryableUnwrapsProviderError(t *testing.T) {
	inner := &ProviderError{Provider: "openai", StatusCode: 429}
	wrapped := fmt.Errorf("model call: %w", inner)
	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable provider error should stay retryable")
	}
}

func TestCollectAssemblesResult(t *testing.T) {
	chunks := make(chan Chunk, 8)
	chunks <- Chunk{Thinking: "let me "}
	chunks <- Chunk{Thinking: "think"}
	chunks <- Chunk{Text: "hello "}
	chunks <- Chunk{Text: "world"}
	chunks <- Chunk{Done: true, FinishReason: models.StopEndTurn, Usage: usageSample()}
	close(chunks)

	res, err := Collect(chunks)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Thinking != "let me think" {
		t.Errorf("Thinking = %q", res.Thinking)
	}
	if res.Usage.InputTokens != 100 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestCollectPropagatesError(t *testing.T) {
	chunks := make(chan Chunk, 2)
	streamErr := errors.New("boom")
	chunks <- Chunk{Text: "partial"}
	chunks <- Chunk{Err: streamErr}
	close(chunks)

	if _, err := Collect(chunks); !errors.Is(err, streamErr) {
		t.Errorf("expected stream error, got %v", err)
	}
}
