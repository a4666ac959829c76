package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao-labs/nao-agent/internal/llm"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/pkg/models"
)

type fakeProvider struct {
	reply string
	err   error
	calls atomic.Int32
}

func (f *fakeProvider) Name() models.Provider { return models.ProviderAnthropic }

func (f *fakeProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Chunk, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: f.reply}
	ch <- llm.Chunk{Done: true, FinishReason: models.StopEndTurn}
	close(ch)
	return ch, nil
}

func newTestService(t *testing.T, provider *fakeProvider) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(ServiceConfig{
		Store: st,
		NewProvider: func(models.ModelSelection) (llm.Provider, error) {
			return provider, nil
		},
	})
	return svc, st
}

func extractorSelection() models.ModelSelection {
	return models.ModelSelection{Provider: models.ProviderAnthropic, Model: "claude-3-5-haiku-latest"}
}

func TestUserMemoriesExcludesChatScoped(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	if err := st.UpsertMemories(ctx, []*models.Memory{
		{UserID: "u1", Content: "Global preference.", Category: models.CategoryPreference},
		{UserID: "u1", Content: "About this chat.", Category: models.CategoryContext, ChatID: "c1"},
		{UserID: "u1", Content: "About another chat.", Category: models.CategoryContext, ChatID: "c2"},
	}); err != nil {
		t.Fatal(err)
	}

	got := svc.UserMemories(ctx, "u1", "c1")
	if len(got) != 2 {
		t.Fatalf("expected 2 memories with c1 excluded, got %d", len(got))
	}
	for _, mem := range got {
		if mem.ChatID == "c1" {
			t.Errorf("memory scoped to c1 leaked: %+v", mem)
		}
	}

	if got := svc.UserMemories(ctx, "u1", ""); len(got) != 3 {
		t.Errorf("no exclusion should return all 3, got %d", len(got))
	}
}

type failingStore struct {
	store.Store
}

func (f *failingStore) GetUserMemories(ctx context.Context, userID string) ([]*models.Memory, error) {
	return nil, errors.New("disk on fire")
}

func TestUserMemoriesFailSoft(t *testing.T) {
	svc := NewService(ServiceConfig{Store: &failingStore{}})
	if got := svc.UserMemories(context.Background(), "u1", ""); len(got) != 0 {
		t.Errorf("read failure should yield empty set, got %d", len(got))
	}
}

func TestScheduleExtractionSkipsShortInput(t *testing.T) {
	provider := &fakeProvider{reply: "[]"}
	svc, _ := newTestService(t, provider)

	svc.ScheduleExtraction("u1", "c1", "ok thanks", extractorSelection())

	time.Sleep(50 * time.Millisecond)
	if n := provider.calls.Load(); n != 0 {
		t.Errorf("short input should skip extraction, provider called %d times", n)
	}
}

func TestExtractInsertsNewMemory(t *testing.T) {
	provider := &fakeProvider{
		reply: `Here is the updated set:
[{"content": "always respond in french", "category": "preference", "scope": "global"}]`,
	}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	err := svc.extract(ctx, "u1", "c1", "from now on, always respond in french", extractorSelection())
	if err != nil {
		t.Fatal(err)
	}

	got, err := st.GetUserMemories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(got))
	}
	if got[0].Content != "always respond in french." {
		t.Errorf("content should be normalized without case change: %q", got[0].Content)
	}
	if got[0].Category != models.CategoryPreference {
		t.Errorf("category = %s, want preference", got[0].Category)
	}
	if got[0].ChatID != "" {
		t.Errorf("global scope should leave ChatID empty, got %q", got[0].ChatID)
	}
}

func TestExtractUnchangedSetIsNoOp(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	seed := []*models.Memory{
		{UserID: "u1", Content: "Round revenue to thousands.", Category: models.CategoryDirective},
		{UserID: "u1", Content: "Fiscal year starts in April.", Category: models.CategoryFact},
	}
	if err := st.UpsertMemories(ctx, seed); err != nil {
		t.Fatal(err)
	}

	// Extractor echoes the stored set back verbatim.
	echo := make([]extractedMemory, len(seed))
	for i, mem := range seed {
		echo[i] = extractedMemory{ID: mem.ID, Content: mem.Content, Category: string(mem.Category)}
	}
	reply, _ := json.Marshal(echo)
	provider := &fakeProvider{reply: string(reply)}
	svc = NewService(ServiceConfig{
		Store: st,
		NewProvider: func(models.ModelSelection) (llm.Provider, error) {
			return provider, nil
		},
	})

	before, _ := st.GetUserMemories(ctx, "u1")
	if err := svc.extract(ctx, "u1", "c1", "some long enough user input here", extractorSelection()); err != nil {
		t.Fatal(err)
	}
	after, _ := st.GetUserMemories(ctx, "u1")

	if len(after) != len(before) {
		t.Fatalf("memory count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Errorf("id churn on unchanged set: %s -> %s", before[i].ID, after[i].ID)
		}
		if !after[i].UpdatedAt.Equal(before[i].UpdatedAt) {
			t.Errorf("unchanged memory %s was rewritten", before[i].ID)
		}
	}
}

func TestExtractUpdatesAndDeletes(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	seed := []*models.Memory{
		{UserID: "u1", Content: "Always respond in French.", Category: models.CategoryPreference},
		{UserID: "u1", Content: "Prefers tables over charts.", Category: models.CategoryPreference},
	}
	if err := st.UpsertMemories(ctx, seed); err != nil {
		t.Fatal(err)
	}

	reply := fmt.Sprintf(
		`[{"id": %q, "content": "Always respond in German", "category": "preference"}]`,
		seed[0].ID)
	provider := &fakeProvider{reply: reply}
	svc = NewService(ServiceConfig{
		Store: st,
		NewProvider: func(models.ModelSelection) (llm.Provider, error) {
			return provider, nil
		},
	})

	if err := svc.extract(ctx, "u1", "c1", "actually switch to german and forget the table thing", extractorSelection()); err != nil {
		t.Fatal(err)
	}

	got, _ := st.GetUserMemories(ctx, "u1")
	if len(got) != 1 {
		t.Fatalf("expected 1 memory after reconciliation, got %d", len(got))
	}
	if got[0].ID != seed[0].ID {
		t.Errorf("update should preserve the id: got %s, want %s", got[0].ID, seed[0].ID)
	}
	if got[0].Content != "Always respond in German." {
		t.Errorf("content = %q", got[0].Content)
	}
}

func TestParseExtractionTolerantOfFences(t *testing.T) {
	reply := "```json\n[{\"content\": \"a fact\", \"category\": \"fact\"}]\n```"
	entries, err := parseExtraction(reply)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Content != "a fact" {
		t.Errorf("parsed %+v", entries)
	}

	if _, err := parseExtraction("I could not find anything."); err == nil {
		t.Error("reply without a JSON array should fail to parse")
	}
}
