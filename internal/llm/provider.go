// Package llm wraps model providers behind a single streaming
// capability: given messages, tools and options, produce a stream of
// chunks and a final usage/finish-reason.
//
// Two implementations exist, Anthropic (anthropic-sdk-go) and OpenAI
// (sashabaranov/go-openai). Both handle streaming, tool calls, retries
// with exponential backoff, and context cancellation. Prompt-cache
// breakpoints are honored by the Anthropic implementation and ignored
// by the rest.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/pkg/models"
)

// ToolDef describes a tool to the model. Execution stays with the
// caller; providers only forward name, description and schema.
type ToolDef struct {
	Name        string
	Description string
	Schema      []byte
}

// CacheTTL selects a prompt-cache lifetime for a breakpoint.
type CacheTTL string

const (
	// CacheNone disables the breakpoint.
	CacheNone CacheTTL = ""
	// CacheShort marks frequently changing content (the conversation tail).
	CacheShort CacheTTL = "5m"
	// CacheLong marks stable content (system instructions, tool defs).
	CacheLong CacheTTL = "1h"
)

// PromptCache places cache breakpoints on the request. Zero value
// means no caching.
type PromptCache struct {
	// System is the TTL for the system prompt breakpoint.
	System CacheTTL
	// LastMessage is the TTL for the breakpoint on the final message.
	LastMessage CacheTTL
}

// Request is one model call.
type Request struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []ToolDef

	// MaxTokens caps output tokens for this single call.
	MaxTokens int

	// Thinking enables extended reasoning where the model supports it.
	Thinking bool
	// ThinkingBudget caps reasoning tokens. Zero selects a default.
	ThinkingBudget int

	// Cache places prompt-cache breakpoints. Ignored by providers
	// without explicit cache control.
	Cache PromptCache
}

// Chunk is one streamed event from a model call. Exactly one of the
// payload fields is meaningful per chunk; Done carries final usage and
// finish reason.
type Chunk struct {
	Text     string
	Thinking string
	ToolCall *models.ToolCall

	Done         bool
	Usage        models.Usage
	FinishReason models.StopReason

	Err error
}

// Provider is the model capability. Stream returns immediately; the
// channel is closed after a Done or error chunk. Cancelling ctx stops
// the stream promptly.
type Provider interface {
	Name() models.Provider
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// Result is a fully collected model response.
type Result struct {
	Text         string
	Thinking     string
	ToolCalls    []models.ToolCall
	Usage        models.Usage
	FinishReason models.StopReason
}

// Collect drains a chunk stream into a Result. The first error chunk
// aborts collection.
func Collect(chunks <-chan Chunk) (*Result, error) {
	res := &Result{}
	var text, thinking []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		text = append(text, chunk.Text...)
		thinking = append(thinking, chunk.Thinking...)
		if chunk.ToolCall != nil {
			res.ToolCalls = append(res.ToolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			res.Usage = chunk.Usage
			res.FinishReason = chunk.FinishReason
		}
	}
	res.Text = string(text)
	res.Thinking = string(thinking)
	if res.FinishReason == "" {
		res.FinishReason = models.StopEndTurn
	}
	return res, nil
}

// New builds a provider for the selection, reading API keys from the
// environment.
func New(sel models.ModelSelection, logger *observability.Logger, metrics *observability.Metrics) (Provider, error) {
	switch sel.Provider {
	case models.ProviderAnthropic:
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  key,
			Logger:  logger,
			Metrics: metrics,
		})
	case models.ProviderOpenAI:
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  key,
			Logger:  logger,
			Metrics: metrics,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", sel.Provider)
	}
}
