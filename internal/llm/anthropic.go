package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/pkg/models"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
//
// Responsibilities:
//   - Converting between our message format and Anthropic content blocks
//   - Streaming SSE events into Chunks
//   - Retry with exponential backoff for transient failures
//   - Placing prompt-cache breakpoints on the system prompt and the
//     final message when requested
//
// Safe for concurrent use; each Stream call owns an independent
// goroutine and channel.
type AnthropicProvider struct {
	client     anthropic.Client
	maxRetries int
	retryDelay time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// AnthropicConfig configures an AnthropicProvider. Only APIKey is
// required.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string

	// MaxRetries caps retry attempts for transient failures. Default 3.
	MaxRetries int
	// RetryDelay is the backoff base; actual delay doubles per attempt.
	// Default 1s.
	RetryDelay time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewAnthropicProvider validates the config and builds a provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:     anthropic.NewClient(options...),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() models.Provider {
	return models.ProviderAnthropic
}

// Stream sends a request and returns a channel of response chunks.
// The channel closes after a Done or error chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	chunks := make(chan Chunk)

	go func() {
		defer close(chunks)
		start := time.Now()

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error

		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}

			wrapped := p.wrapError(err, req.Model)
			if !IsRetryable(wrapped) {
				p.recordRequest(req.Model, "error", start, models.Usage{})
				chunks <- Chunk{Err: wrapped}
				return
			}
			if attempt < p.maxRetries {
				backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
				if p.logger != nil {
					p.logger.Warn(ctx, "anthropic request retry",
						"attempt", attempt+1, "backoff", backoff.String(), "error", wrapped)
				}
				select {
				case <-ctx.Done():
					chunks <- Chunk{Err: ctx.Err()}
					return
				case <-time.After(backoff):
				}
			}
		}
		if err != nil {
			p.recordRequest(req.Model, "error", start, models.Usage{})
			chunks <- Chunk{Err: fmt.Errorf("anthropic: max retries exceeded: %w", p.wrapError(err, req.Model))}
			return
		}

		p.processStream(ctx, stream, chunks, req.Model, start)
	}()

	return chunks, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *Request) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := convertAnthropicMessages(req.Messages, req.Cache.LastMessage)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		block := anthropic.TextBlockParam{Type: "text", Text: req.System}
		if req.Cache.System != CacheNone {
			block.CacheControl = cacheControl(req.Cache.System)
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	if req.Thinking {
		budget := int64(req.ThinkingBudget)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// maxEmptyStreamEvents bounds consecutive no-op events before the
// stream is treated as malformed.
const maxEmptyStreamEvents = 300

func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- Chunk, model string, start time.Time) {
	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder
	emptyEventCount := 0
	inThinkingBlock := false

	var usage models.Usage
	finishReason := models.StopEndTurn

	for stream.Next() {
		event := stream.Current()
		eventProcessed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			usage.InputTokens = int(messageStart.Message.Usage.InputTokens)
			usage.CacheCreationTokens = int(messageStart.Message.Usage.CacheCreationInputTokens)
			usage.CacheReadTokens = int(messageStart.Message.Usage.CacheReadInputTokens)
			eventProcessed = true

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			switch contentBlock.Type {
			case "thinking":
				inThinkingBlock = true
				eventProcessed = true
			case "tool_use":
				toolUse := contentBlock.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				eventProcessed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- Chunk{Text: delta.Text}
					eventProcessed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- Chunk{Thinking: delta.Thinking}
					eventProcessed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					eventProcessed = true
				}
			}

		case "content_block_stop":
			if inThinkingBlock {
				inThinkingBlock = false
				eventProcessed = true
			} else if currentToolCall != nil {
				input := currentToolInput.String()
				if input == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				chunks <- Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
				eventProcessed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
			}
			if messageDelta.Delta.StopReason != "" {
				finishReason = mapAnthropicStopReason(string(messageDelta.Delta.StopReason))
			}
			eventProcessed = true

		case "message_stop":
			usage.CostUSD = estimateCost(models.ProviderAnthropic, model, usage)
			p.recordRequest(model, "success", start, usage)
			chunks <- Chunk{Done: true, Usage: usage, FinishReason: finishReason}
			return

		case "error":
			p.recordRequest(model, "error", start, usage)
			chunks <- Chunk{Err: p.wrapError(errors.New("anthropic stream error"), model)}
			return
		}

		if eventProcessed {
			emptyEventCount = 0
		} else {
			emptyEventCount++
			if emptyEventCount >= maxEmptyStreamEvents {
				chunks <- Chunk{Err: p.wrapError(
					fmt.Errorf("stream appears malformed: received %d consecutive empty events", emptyEventCount), model)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		p.recordRequest(model, "error", start, usage)
		chunks <- Chunk{Err: p.wrapError(err, model)}
		return
	}

	// Stream ended without message_stop; usually a cancelled context.
	if ctx.Err() != nil {
		chunks <- Chunk{Err: ctx.Err()}
	}
}

func (p *AnthropicProvider) recordRequest(model, status string, start time.Time, usage models.Usage) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordModelRequest("anthropic", model, status,
		time.Since(start).Seconds(), usage.InputTokens, usage.OutputTokens)
}

func mapAnthropicStopReason(reason string) models.StopReason {
	switch reason {
	case "tool_use":
		return models.StopToolUse
	case "max_tokens":
		return models.StopMaxTokens
	default:
		return models.StopEndTurn
	}
}

func cacheControl(ttl CacheTTL) anthropic.CacheControlEphemeralParam {
	return anthropic.CacheControlEphemeralParam{
		TTL: anthropic.CacheControlEphemeralTTL(ttl),
	}
}

// convertAnthropicMessages translates messages to Anthropic content
// blocks. When lastTTL is set, a cache breakpoint lands on the final
// content block of the final message.
func convertAnthropicMessages(messages []models.Message, lastTTL CacheTTL) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for i, msg := range messages {
		// System content travels in params.System, never as a message.
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion

		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Content,
				toolResult.IsError,
			))
		}

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, toolCall := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", toolCall.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}

		if len(content) == 0 {
			continue
		}

		if lastTTL != CacheNone && i == len(messages)-1 {
			applyCacheControl(&content[len(content)-1], lastTTL)
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func applyCacheControl(block *anthropic.ContentBlockParamUnion, ttl CacheTTL) {
	cc := cacheControl(ttl)
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = cc
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = cc
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = cc
	}
}

func convertAnthropicTools(tools []ToolDef) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Provider:   "anthropic",
			Model:      model,
			StatusCode: apiErr.StatusCode,
			Cause:      err,
		}
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				providerErr.Message = payload.Error.Message
				providerErr.Code = payload.Error.Type
			}
		}
		return providerErr
	}

	return &ProviderError{Provider: "anthropic", Model: model, Cause: err}
}
