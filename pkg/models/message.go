// Package models defines the core data types for the nao agent.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Chat is a conversation thread between one user and the agent,
// scoped to a project.
type Chat struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	ProjectID string         `json:"project_id"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Message is a single turn in a chat. Assistant messages may carry
// thinking text, tool calls and, once finalized, usage and stop reason.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chat_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Thinking    string       `json:"thinking,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	Model       string       `json:"model,omitempty"`
	StopReason  StopReason   `json:"stop_reason,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsEmpty reports whether the message carries nothing a model call
// could use: no content, no thinking, no tool traffic.
func (m Message) IsEmpty() bool {
	return m.Content == "" && m.Thinking == "" &&
		len(m.ToolCalls) == 0 && len(m.ToolResults) == 0
}

// ToolCall is the model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the output of a tool execution, paired to a ToolCall
// by ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	// UIOnly marks results that only feed the user interface (charts,
	// tables). They carry nothing the model needs on later turns and are
	// pruned together with their calls.
	UIOnly bool `json:"ui_only,omitempty"`
}

// StopReason explains why a run stopped.
type StopReason string

const (
	// StopEndTurn is the provider's natural end of response.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the model requested tools; terminal only when a
	// finalizing tool was among them.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens means the cumulative output-token ceiling was hit.
	StopMaxTokens StopReason = "max_tokens"
	// StopInterrupted means the run was cancelled, either by the user or
	// by a replacement session. Partial output is preserved.
	StopInterrupted StopReason = "interrupted"
	// StopError means the run failed; see the terminal error event.
	StopError StopReason = "error"
)

// Usage aggregates token accounting for one assistant response.
// Cache fields stay zero for providers without prompt caching.
type Usage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int     `json:"cache_read_tokens,omitempty"`
	CostUSD             float64 `json:"cost_usd,omitempty"`
}

// Add accumulates another usage sample, as reported per model call
// within a multi-step run.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CostUSD += other.CostUSD
}
