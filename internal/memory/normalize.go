// Package memory stores short durable directives about a user and
// reconciles them in the background after each user turn. A token
// budgeted subset is injected into every session's instructions.
package memory

import (
	"sort"
	"strings"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// Normalize canonicalizes memory content: trim, collapse runs of
// whitespace to single spaces, and ensure terminal punctuation. Case is
// preserved.
func Normalize(content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return ""
	}
	s := strings.Join(fields, " ")
	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}

// EstimateTokens approximates the token cost of content as one token
// per four characters, rounded up.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// SortForInjection orders memories by category priority, then by most
// recent update first.
func SortForInjection(memories []*models.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		ri, rj := memories[i].Category.Rank(), memories[j].Category.Rank()
		if ri != rj {
			return ri < rj
		}
		return memories[i].UpdatedAt.After(memories[j].UpdatedAt)
	})
}

// SelectWithinBudget walks memories in injection order and greedily
// includes each one whose estimated cost fits the remaining budget.
// A skipped memory does not stop the walk: later, smaller entries may
// still slip in underneath the cap.
func SelectWithinBudget(memories []*models.Memory, budget int) []*models.Memory {
	if budget <= 0 {
		return nil
	}
	var out []*models.Memory
	used := 0
	for _, mem := range memories {
		cost := EstimateTokens(mem.Content)
		if used+cost > budget {
			continue
		}
		used += cost
		out = append(out, mem)
	}
	return out
}
