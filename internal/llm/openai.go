package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/pkg/models"
)

// OpenAIProvider implements Provider for OpenAI chat completions.
//
// Differences from the Anthropic implementation:
//   - The system prompt rides in the messages array
//   - Tool calls stream incrementally and are accumulated by index
//   - Tool results become separate role "tool" messages
//   - Prompt-cache breakpoints are ignored; OpenAI caches implicitly
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// OpenAIConfig configures an OpenAIProvider. Only APIKey is required.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// MaxRetries caps retry attempts for transient failures. Default 3.
	MaxRetries int
	// RetryDelay is the linear backoff base. Default 1s.
	RetryDelay time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewOpenAIProvider validates the config and builds a provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() models.Provider {
	return models.ProviderOpenAI
}

// Stream sends a request and returns a channel of response chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertOpenAIMessages(req.System, req.Messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error

	// Linear backoff: 0s, 1s, 2s, ...
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !IsRetryable(lastErr) {
			return nil, p.wrapError(lastErr, req.Model)
		}
		if p.logger != nil {
			p.logger.Warn(ctx, "openai request retry", "attempt", attempt+1, "error", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", p.wrapError(lastErr, req.Model))
	}

	chunks := make(chan Chunk)
	go p.processStream(ctx, stream, chunks, req.Model, time.Now())
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- Chunk, model string, start time.Time) {
	defer close(chunks)
	defer stream.Close()

	// Tool calls arrive as fragments keyed by index.
	toolCalls := make(map[int]*models.ToolCall)
	var usage models.Usage
	finishReason := models.StopEndTurn
	toolCallsEmitted := false

	emitToolCalls := func() {
		indexes := make([]int, 0, len(toolCalls))
		for i := range toolCalls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			tc := toolCalls[i]
			if tc.ID != "" && tc.Name != "" {
				if len(tc.Input) == 0 {
					tc.Input = json.RawMessage("{}")
				}
				chunks <- Chunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*models.ToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- Chunk{Err: ctx.Err()}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				if !toolCallsEmitted {
					emitToolCalls()
				}
				usage.CostUSD = estimateCost(models.ProviderOpenAI, model, usage)
				p.recordRequest(model, "success", start, usage)
				chunks <- Chunk{Done: true, Usage: usage, FinishReason: finishReason}
				return
			}
			p.recordRequest(model, "error", start, usage)
			chunks <- Chunk{Err: p.wrapError(err, model)}
			return
		}

		if response.Usage != nil {
			usage.InputTokens = response.Usage.PromptTokens
			usage.OutputTokens = response.Usage.CompletionTokens
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- Chunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				args := string(toolCalls[index].Input) + tc.Function.Arguments
				toolCalls[index].Input = json.RawMessage(args)
			}
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			finishReason = models.StopToolUse
			emitToolCalls()
			toolCallsEmitted = true
		case openai.FinishReasonLength:
			finishReason = models.StopMaxTokens
		case openai.FinishReasonStop:
			finishReason = models.StopEndTurn
		}
	}
}

func (p *OpenAIProvider) recordRequest(model, status string, start time.Time, usage models.Usage) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordModelRequest("openai", model, status,
		time.Since(start).Seconds(), usage.InputTokens, usage.OutputTokens)
}

func convertOpenAIMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
			continue
		}

		// Tool results become separate role "tool" messages.
		for _, tr := range msg.ToolResults {
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    tr.Content,
				ToolCallID: tr.ToolCallID,
			})
		}

		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}

	return result
}

func convertOpenAITools(tools []ToolDef) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(tool.Schema),
			},
		}
	}
	return result
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return &ProviderError{
			Provider:   "openai",
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Code:       code,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}

	return &ProviderError{Provider: "openai", Model: model, Cause: err}
}
