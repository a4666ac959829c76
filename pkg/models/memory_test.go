package models

import "testing"

func TestMemoryCategoryRankOrdering(t *testing.T) {
	order := []MemoryCategory{CategoryPreference, CategoryDirective, CategoryContext, CategoryFact}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("expected %s to rank before %s", order[i-1], order[i])
		}
	}
	if MemoryCategory("bogus").Rank() <= CategoryFact.Rank() {
		t.Error("unknown category should sort after known categories")
	}
}

func TestParseMemoryCategory(t *testing.T) {
	cases := map[string]MemoryCategory{
		"preference":  CategoryPreference,
		" Directive ": CategoryDirective,
		"CONTEXT":     CategoryContext,
		"fact":        CategoryFact,
		"whatever":    CategoryFact,
		"":            CategoryFact,
	}
	for in, want := range cases {
		if got := ParseMemoryCategory(in); got != want {
			t.Errorf("ParseMemoryCategory(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 100, OutputTokens: 20, CacheReadTokens: 50, CostUSD: 0.01}
	u.Add(Usage{InputTokens: 10, OutputTokens: 5, CacheCreationTokens: 30, CostUSD: 0.002})

	if u.InputTokens != 110 || u.OutputTokens != 25 {
		t.Errorf("token totals wrong: %+v", u)
	}
	if u.CacheCreationTokens != 30 || u.CacheReadTokens != 50 {
		t.Errorf("cache totals wrong: %+v", u)
	}
	if u.CostUSD != 0.012 {
		t.Errorf("cost total wrong: %v", u.CostUSD)
	}
}

func TestMessageIsEmpty(t *testing.T) {
	if !(Message{Role: RoleAssistant}).IsEmpty() {
		t.Error("blank assistant message should be empty")
	}
	if (Message{Thinking: "hmm"}).IsEmpty() {
		t.Error("thinking-only message is not empty")
	}
	if (Message{ToolResults: []ToolResult{{ToolCallID: "t1"}}}).IsEmpty() {
		t.Error("tool-result message is not empty")
	}
}
