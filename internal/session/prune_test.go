package session

import (
	"reflect"
	"testing"

	"github.com/nao-labs/nao-agent/internal/tools"
	"github.com/nao-labs/nao-agent/pkg/models"
)

func TestPruneStripsThinkingExceptLast(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleAssistant, Content: "a", Thinking: "step one"},
		{Role: models.RoleUser, Content: "b"},
		{Role: models.RoleAssistant, Content: "c", Thinking: "step two"},
	}
	out := pruneForModel(msgs)
	if len(out) != 3 {
		t.Fatalf("pruned to %d messages", len(out))
	}
	if out[0].Thinking != "" {
		t.Error("older thinking should be stripped")
	}
	if out[2].Thinking != "step two" {
		t.Error("latest thinking should survive")
	}
}

func TestPruneRemovesUIOnlyToolTraffic(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "show revenue"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "sql"},
			{ID: "t2", Name: tools.FinalizeToolName},
		}},
		{Role: models.RoleUser, ToolResults: []models.ToolResult{
			{ToolCallID: "t1", Name: "sql", Content: "| revenue |"},
			{ToolCallID: "t2", Name: tools.FinalizeToolName, UIOnly: true},
		}},
	}
	out := pruneForModel(msgs)
	if len(out) != 3 {
		t.Fatalf("pruned to %d messages", len(out))
	}
	if len(out[1].ToolCalls) != 1 || out[1].ToolCalls[0].ID != "t1" {
		t.Errorf("finalize call should be removed: %+v", out[1].ToolCalls)
	}
	if len(out[2].ToolResults) != 1 || out[2].ToolResults[0].ToolCallID != "t1" {
		t.Errorf("finalize result should be removed: %+v", out[2].ToolResults)
	}
}

func TestPruneDropsMessagesLeftEmpty(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "done?"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "t1", Name: tools.FinalizeToolName},
		}},
		{Role: models.RoleUser, ToolResults: []models.ToolResult{
			{ToolCallID: "t1", Name: tools.FinalizeToolName, UIOnly: true},
		}},
		{Role: models.RoleAssistant, Content: "all set"},
	}
	out := pruneForModel(msgs)
	if len(out) != 2 {
		t.Fatalf("pruned to %d messages, want 2", len(out))
	}
	if out[0].Content != "done?" || out[1].Content != "all set" {
		t.Errorf("unexpected survivors: %+v", out)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a", Thinking: "old", ToolCalls: []models.ToolCall{
			{ID: "t1", Name: tools.FinalizeToolName},
		}},
		{Role: models.RoleUser, ToolResults: []models.ToolResult{
			{ToolCallID: "t1", UIOnly: true},
		}},
		{Role: models.RoleAssistant, Content: "b", Thinking: "new"},
	}
	once := pruneForModel(msgs)
	twice := pruneForModel(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("pruning twice diverged:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}
