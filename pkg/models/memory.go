package models

import (
	"strings"
	"time"
)

// Memory is a durable directive or fact extracted from conversation,
// injected into future prompts for the same user.
type Memory struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Content  string         `json:"content"`
	Category MemoryCategory `json:"category"`

	// ChatID scopes a memory to one chat. Empty means global: the memory
	// applies to every chat the user starts.
	ChatID string `json:"chat_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryCategory classifies a memory and determines its injection
// priority when the token budget forces a selection.
type MemoryCategory string

const (
	// CategoryPreference captures standing user preferences
	// ("always respond in French").
	CategoryPreference MemoryCategory = "preference"
	// CategoryDirective captures instructions about how to work
	// ("round revenue figures to thousands").
	CategoryDirective MemoryCategory = "directive"
	// CategoryContext captures situational knowledge about the user's
	// projects and goals.
	CategoryContext MemoryCategory = "context"
	// CategoryFact captures standalone facts about the user's domain.
	CategoryFact MemoryCategory = "fact"
)

// memoryCategoryRank orders categories by injection priority.
// Lower rank is injected first.
var memoryCategoryRank = map[MemoryCategory]int{
	CategoryPreference: 0,
	CategoryDirective:  1,
	CategoryContext:    2,
	CategoryFact:       3,
}

// Rank returns the category's injection priority. Unknown categories
// sort after all known ones.
func (c MemoryCategory) Rank() int {
	if r, ok := memoryCategoryRank[c]; ok {
		return r
	}
	return len(memoryCategoryRank)
}

// ParseMemoryCategory maps free-form model output onto a known
// category, defaulting to fact.
func ParseMemoryCategory(s string) MemoryCategory {
	switch MemoryCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPreference:
		return CategoryPreference
	case CategoryDirective:
		return CategoryDirective
	case CategoryContext:
		return CategoryContext
	default:
		return CategoryFact
	}
}
