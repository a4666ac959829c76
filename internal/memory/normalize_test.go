package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/nao-labs/nao-agent/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"always respond in french", "always respond in french."},
		{"  always   respond\tin french ", "always respond in french."},
		{"Revenue is reported in EUR.", "Revenue is reported in EUR."},
		{"Is that right?", "Is that right?"},
		{"Ship it!", "Ship it!"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{1200, 300},
	}
	for _, tt := range tests {
		content := strings.Repeat("x", tt.length)
		if got := EstimateTokens(content); got != tt.want {
			t.Errorf("EstimateTokens(len %d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func memWithCost(id string, category models.MemoryCategory, tokens int) *models.Memory {
	return &models.Memory{
		ID:       id,
		Content:  strings.Repeat("x", tokens*4),
		Category: category,
	}
}

func TestSelectWithinBudgetContinuesPastOversizedEntries(t *testing.T) {
	memories := []*models.Memory{
		memWithCost("a", models.CategoryPreference, 300),
		memWithCost("b", models.CategoryDirective, 300),
		memWithCost("c", models.CategoryContext, 300),
		memWithCost("d", models.CategoryFact, 150),
	}

	got := SelectWithinBudget(memories, 500)
	if len(got) != 2 {
		t.Fatalf("expected 2 selected memories, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "d" {
		t.Errorf("selection should skip oversized entries and keep scanning: got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSelectWithinBudgetZeroBudget(t *testing.T) {
	memories := []*models.Memory{memWithCost("a", models.CategoryFact, 1)}
	if got := SelectWithinBudget(memories, 0); got != nil {
		t.Errorf("zero budget should select nothing, got %d", len(got))
	}
}

func TestSortForInjectionCategoryThenRecency(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	memories := []*models.Memory{
		{ID: "old-fact", Category: models.CategoryFact, UpdatedAt: base},
		{ID: "new-fact", Category: models.CategoryFact, UpdatedAt: base.Add(time.Hour)},
		{ID: "pref", Category: models.CategoryPreference, UpdatedAt: base},
	}

	SortForInjection(memories)

	want := []string{"pref", "new-fact", "old-fact"}
	for i, id := range want {
		if memories[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, memories[i].ID, id)
		}
	}
}
