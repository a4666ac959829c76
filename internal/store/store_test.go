package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// Both implementations run the same behavior suite.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nao.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestChatRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			chat := &models.Chat{UserID: "u1", ProjectID: "p1", Title: "revenue"}
			if err := s.CreateChat(ctx, chat); err != nil {
				t.Fatal(err)
			}
			if chat.ID == "" {
				t.Fatal("CreateChat should assign an id")
			}

			got, err := s.GetChat(ctx, chat.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.UserID != "u1" || got.ProjectID != "p1" || got.Title != "revenue" {
				t.Errorf("chat round trip mismatch: %+v", got)
			}

			if _, err := s.GetChat(ctx, "missing"); err != ErrNotFound {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpsertMessageInsertThenUpdate(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			chat := &models.Chat{UserID: "u1", ProjectID: "p1"}
			if err := s.CreateChat(ctx, chat); err != nil {
				t.Fatal(err)
			}

			msg := &models.Message{
				ChatID:  chat.ID,
				Role:    models.RoleAssistant,
				Content: "partial",
				ToolCalls: []models.ToolCall{
					{ID: "t1", Name: "sql", Input: []byte(`{"query":"select 1"}`)},
				},
			}
			if err := s.UpsertMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}

			msg.Content = "final"
			msg.StopReason = models.StopEndTurn
			msg.Usage = &models.Usage{InputTokens: 10, OutputTokens: 5}
			if err := s.UpsertMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}

			msgs, err := s.ListMessages(ctx, chat.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message after upsert, got %d", len(msgs))
			}
			got := msgs[0]
			if got.Content != "final" || got.StopReason != models.StopEndTurn {
				t.Errorf("update lost: %+v", got)
			}
			if got.Usage == nil || got.Usage.InputTokens != 10 {
				t.Errorf("usage lost: %+v", got.Usage)
			}
			if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "sql" {
				t.Errorf("tool calls lost: %+v", got.ToolCalls)
			}
		})
	}
}

func TestMemoriesUpsertAndDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mems := []*models.Memory{
				{UserID: "u1", Content: "Always respond in French.", Category: models.CategoryPreference},
				{UserID: "u1", Content: "Revenue is reported in EUR.", Category: models.CategoryFact, ChatID: "c1"},
				{UserID: "u2", Content: "Other user.", Category: models.CategoryFact},
			}
			if err := s.UpsertMemories(ctx, mems); err != nil {
				t.Fatal(err)
			}

			got, err := s.GetUserMemories(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 memories for u1, got %d", len(got))
			}

			// Update in place keeps the id.
			mems[0].Content = "Always respond in German."
			if err := s.UpsertMemories(ctx, mems[:1]); err != nil {
				t.Fatal(err)
			}
			got, _ = s.GetUserMemories(ctx, "u1")
			if len(got) != 2 {
				t.Fatalf("update created a duplicate: %d memories", len(got))
			}

			if err := s.DeleteMemories(ctx, []string{mems[0].ID}); err != nil {
				t.Fatal(err)
			}
			got, _ = s.GetUserMemories(ctx, "u1")
			if len(got) != 1 {
				t.Fatalf("expected 1 memory after delete, got %d", len(got))
			}
		})
	}
}

func TestToolStatePersistence(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			state, err := s.GetToolState(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if len(state.KnownServers) != 0 {
				t.Errorf("fresh project should have empty state: %+v", state)
			}

			state.KnownServers["github"] = true
			state.EnabledTools["github__search_issues"] = true
			if err := s.SaveToolState(ctx, "p1", state); err != nil {
				t.Fatal(err)
			}

			got, err := s.GetToolState(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if !got.KnownServers["github"] || !got.EnabledTools["github__search_issues"] {
				t.Errorf("tool state lost: %+v", got)
			}

			// Stored state is isolated from later mutation of the copy.
			got.EnabledTools["github__search_issues"] = false
			again, _ := s.GetToolState(ctx, "p1")
			if !again.EnabledTools["github__search_issues"] {
				t.Error("mutating a returned state must not affect the store")
			}
		})
	}
}
