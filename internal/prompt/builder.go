// Package prompt assembles the instruction and message payload for a
// model call: base system instructions, the budgeted memory section,
// skill injection keyed off the latest user turn, and empty-turn
// backfill.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao-labs/nao-agent/internal/memory"
	"github.com/nao-labs/nao-agent/internal/skills"
	"github.com/nao-labs/nao-agent/pkg/models"
)

const baseInstructions = `You are nao, a data analytics agent. You answer business questions by reading the project's model and documentation files and by querying its databases with the available tools.

Ground every figure in a query you actually ran. When a question is ambiguous, state the interpretation you chose. Prefer the project's documented metric definitions over ad-hoc ones. When the answer is complete, call the finalize tool.`

// defaultMemoryBudget caps the token cost of the injected memory
// section when the project does not configure one.
const defaultMemoryBudget = 1000

// continuePrompt backfills an empty user turn so providers that reject
// empty message lists still get a valid request.
const continuePrompt = "Continue."

// Config wires the builder's collaborators.
type Config struct {
	ProjectName  string
	Memories     *memory.Service
	Skills       *skills.Library
	MemoryBudget int
}

// Builder assembles per-session prompts.
type Builder struct {
	projectName  string
	memories     *memory.Service
	skills       *skills.Library
	memoryBudget int
}

// NewBuilder creates a prompt builder.
func NewBuilder(cfg Config) *Builder {
	b := &Builder{
		projectName:  cfg.ProjectName,
		memories:     cfg.Memories,
		skills:       cfg.Skills,
		memoryBudget: cfg.MemoryBudget,
	}
	if b.memoryBudget <= 0 {
		b.memoryBudget = defaultMemoryBudget
	}
	return b
}

// System builds the system prompt for one turn. Memories scoped to the
// current chat are excluded; skills are matched against the latest
// user text.
func (b *Builder) System(ctx context.Context, userID, chatID, latestUserText string) string {
	var sections []string
	sections = append(sections, baseInstructions)

	if b.projectName != "" {
		sections = append(sections, fmt.Sprintf("# Project\n\nYou are working in the project %q.", b.projectName))
	}

	if b.memories != nil {
		selected := b.memories.ForPrompt(ctx, userID, chatID, b.memoryBudget)
		if len(selected) > 0 {
			var mem strings.Builder
			mem.WriteString("# User memories\n\nEstablished preferences and facts about this user:\n")
			for _, m := range selected {
				fmt.Fprintf(&mem, "- %s\n", m.Content)
			}
			sections = append(sections, strings.TrimRight(mem.String(), "\n"))
		}
	}

	if b.skills != nil {
		matched := b.skills.Match(latestUserText)
		for _, skill := range matched {
			sections = append(sections, fmt.Sprintf("# Skill: %s\n\n%s", skill.Name, skill.Content))
		}
	}

	return strings.Join(sections, "\n\n")
}

// Messages returns the turn's user messages, backfilling a minimal
// prompt when none carry content.
func (b *Builder) Messages(userMessages []models.Message) []models.Message {
	for _, msg := range userMessages {
		if strings.TrimSpace(msg.Content) != "" ||
			len(msg.ToolCalls) > 0 || len(msg.ToolResults) > 0 {
			return userMessages
		}
	}
	return []models.Message{{Role: models.RoleUser, Content: continuePrompt}}
}

// LatestUserText extracts the newest non-empty user text from a turn,
// used for skill matching and memory extraction.
func LatestUserText(userMessages []models.Message) string {
	for i := len(userMessages) - 1; i >= 0; i-- {
		if userMessages[i].Role == models.RoleUser && strings.TrimSpace(userMessages[i].Content) != "" {
			return userMessages[i].Content
		}
	}
	return ""
}
