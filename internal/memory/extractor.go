package memory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao-labs/nao-agent/pkg/models"
)

const extractionMaxTokens = 1024

const (
	scopeGlobal = "global"
	scopeChat   = "chat"
)

const extractionSystemPrompt = `You maintain a small set of durable memories about a user of a data analytics assistant.

You receive the current memory set as a JSON array and the user's latest message. Return the full updated memory set as a JSON array, nothing else.

Rules:
- Keep a memory's "id" whenever you keep or reword it. Only omit "id" for genuinely new memories.
- Drop memories the new message contradicts or makes obsolete.
- Only record durable preferences, directives, context or facts. Ignore one-off questions and pleasantries.
- Each entry: {"id": "...", "content": "...", "category": "preference|directive|context|fact", "scope": "global|chat"}
- Use scope "chat" only for information that is clearly about the current conversation alone.
- Return [] if nothing is worth remembering and nothing was stored.`

// extractedMemory is one entry of the extractor model's JSON reply.
type extractedMemory struct {
	ID       string `json:"id,omitempty"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Scope    string `json:"scope,omitempty"`
}

// buildExtractionInput renders the current memory set and the new turn
// for the extractor model.
func buildExtractionInput(existing []*models.Memory, input string) string {
	entries := make([]extractedMemory, 0, len(existing))
	for _, mem := range existing {
		scope := scopeGlobal
		if mem.ChatID != "" {
			scope = scopeChat
		}
		entries = append(entries, extractedMemory{
			ID:       mem.ID,
			Content:  mem.Content,
			Category: string(mem.Category),
			Scope:    scope,
		})
	}
	current, _ := json.Marshal(entries)

	var b strings.Builder
	b.WriteString("Current memories:\n")
	b.Write(current)
	b.WriteString("\n\nNew user message:\n")
	b.WriteString(input)
	return b.String()
}

// parseExtraction decodes the extractor reply, tolerating code fences
// and surrounding prose around the JSON array.
func parseExtraction(reply string) ([]extractedMemory, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in extractor reply")
	}

	var entries []extractedMemory
	if err := json.Unmarshal([]byte(reply[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("decode extractor reply: %w", err)
	}
	return entries, nil
}
