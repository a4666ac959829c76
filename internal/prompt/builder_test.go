package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao-labs/nao-agent/internal/memory"
	"github.com/nao-labs/nao-agent/internal/skills"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/pkg/models"
)

func TestSystemIncludesBudgetedMemories(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if err := st.UpsertMemories(ctx, []*models.Memory{
		{UserID: "u1", Content: "Always respond in French.", Category: models.CategoryPreference},
		{UserID: "u1", Content: "Created in this chat.", Category: models.CategoryContext, ChatID: "c1"},
	}); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(Config{
		ProjectName: "warehouse",
		Memories:    memory.NewService(memory.ServiceConfig{Store: st}),
	})

	system := b.System(ctx, "u1", "c1", "show revenue")
	if !strings.Contains(system, "# User memories") {
		t.Error("memory section missing")
	}
	if !strings.Contains(system, "Always respond in French.") {
		t.Error("global memory missing")
	}
	if strings.Contains(system, "Created in this chat.") {
		t.Error("current-chat memory must not be echoed back into the same chat")
	}
	if !strings.Contains(system, `"warehouse"`) {
		t.Error("project name missing")
	}
}

func TestSystemOmitsEmptyMemorySection(t *testing.T) {
	b := NewBuilder(Config{
		Memories: memory.NewService(memory.ServiceConfig{Store: store.NewMemoryStore()}),
	})
	system := b.System(context.Background(), "u1", "", "hello")
	if strings.Contains(system, "# User memories") {
		t.Error("empty memory set should produce no section")
	}
}

func TestSystemInjectsMatchedSkills(t *testing.T) {
	dir := t.TempDir()
	skillFile := `---
name: revenue-definitions
keywords: [revenue]
---
ARR comes from closed-won subscriptions.`
	if err := os.WriteFile(filepath.Join(dir, "revenue.md"), []byte(skillFile), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := skills.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(Config{Skills: lib})

	system := b.System(context.Background(), "u1", "", "how is revenue doing")
	if !strings.Contains(system, "# Skill: revenue-definitions") {
		t.Error("matched skill not injected")
	}

	system = b.System(context.Background(), "u1", "", "list the tables")
	if strings.Contains(system, "revenue-definitions") {
		t.Error("unmatched skill should not be injected")
	}
}

func TestMessagesBackfillsEmptyTurn(t *testing.T) {
	b := NewBuilder(Config{})

	out := b.Messages(nil)
	if len(out) != 1 || out[0].Content != "Continue." {
		t.Errorf("empty turn should backfill: %+v", out)
	}

	out = b.Messages([]models.Message{{Role: models.RoleUser, Content: "  "}})
	if len(out) != 1 || out[0].Content != "Continue." {
		t.Errorf("whitespace-only turn should backfill: %+v", out)
	}

	in := []models.Message{{Role: models.RoleUser, Content: "hi"}}
	out = b.Messages(in)
	if len(out) != 1 || out[0].Content != "hi" {
		t.Errorf("non-empty turn should pass through: %+v", out)
	}
}

func TestLatestUserText(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "reply"},
		{Role: models.RoleUser, Content: "second"},
	}
	if got := LatestUserText(msgs); got != "second" {
		t.Errorf("LatestUserText = %q", got)
	}
	if got := LatestUserText(nil); got != "" {
		t.Errorf("LatestUserText(nil) = %q", got)
	}
}
