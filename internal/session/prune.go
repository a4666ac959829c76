package session

import (
	"github.com/nao-labs/nao-agent/internal/tools"
	"github.com/nao-labs/nao-agent/pkg/models"
)

// pruneForModel bounds token growth across a multi-step loop. It drops
// thinking from every message except the newest, removes tool
// call/result pairs of UI-only tools entirely, and discards messages
// left with no content. Running it twice yields the same list.
func pruneForModel(msgs []models.Message) []models.Message {
	if len(msgs) == 0 {
		return msgs
	}

	// Collect the call ids of UI-only tool traffic.
	uiOnly := make(map[string]bool)
	for _, msg := range msgs {
		for _, call := range msg.ToolCalls {
			if tools.UIOnlyTools[call.Name] {
				uiOnly[call.ID] = true
			}
		}
		for _, res := range msg.ToolResults {
			if res.UIOnly {
				uiOnly[res.ToolCallID] = true
			}
		}
	}

	out := make([]models.Message, 0, len(msgs))
	for i, msg := range msgs {
		if i < len(msgs)-1 {
			msg.Thinking = ""
		}

		if len(uiOnly) > 0 {
			if len(msg.ToolCalls) > 0 {
				kept := make([]models.ToolCall, 0, len(msg.ToolCalls))
				for _, call := range msg.ToolCalls {
					if !uiOnly[call.ID] {
						kept = append(kept, call)
					}
				}
				msg.ToolCalls = kept
			}
			if len(msg.ToolResults) > 0 {
				kept := make([]models.ToolResult, 0, len(msg.ToolResults))
				for _, res := range msg.ToolResults {
					if !uiOnly[res.ToolCallID] {
						kept = append(kept, res)
					}
				}
				msg.ToolResults = kept
			}
		}

		if msg.IsEmpty() {
			continue
		}
		out = append(out, msg)
	}
	return out
}
