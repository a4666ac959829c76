package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// maxMessagesPerChat bounds messages kept per chat so a long-lived
// process does not grow without limit. Oldest messages are trimmed.
const maxMessagesPerChat = 1000

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	chats      map[string]*models.Chat
	messages   map[string][]*models.Message
	memories   map[string]*models.Memory
	toolStates map[string]*ToolState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:      map[string]*models.Chat{},
		messages:   map[string][]*models.Message{},
		memories:   map[string]*models.Memory{},
		toolStates: map[string]*ToolState{},
	}
}

func (m *MemoryStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("chat is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneChat(chat)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to the caller.
	chat.ID = clone.ID
	chat.CreatedAt = clone.CreatedAt
	chat.UpdatedAt = clone.UpdatedAt
	m.chats[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChat(chat), nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[chatID]
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out, nil
}

func (m *MemoryStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if msg.ChatID == "" {
		return errors.New("message chat id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		msg.ID = clone.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
		msg.CreatedAt = clone.CreatedAt
	}

	msgs := m.messages[clone.ChatID]
	for i, existing := range msgs {
		if existing.ID == clone.ID {
			msgs[i] = clone
			return nil
		}
	}
	msgs = append(msgs, clone)
	if len(msgs) > maxMessagesPerChat {
		msgs = msgs[len(msgs)-maxMessagesPerChat:]
	}
	m.messages[clone.ChatID] = msgs

	if chat, ok := m.chats[clone.ChatID]; ok {
		chat.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryStore) GetUserMemories(ctx context.Context, userID string) ([]*models.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Memory
	for _, mem := range m.memories {
		if mem.UserID == userID {
			out = append(out, cloneMemory(mem))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpsertMemories(ctx context.Context, memories []*models.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, mem := range memories {
		if mem == nil {
			continue
		}
		clone := cloneMemory(mem)
		if clone.ID == "" {
			clone.ID = uuid.NewString()
			mem.ID = clone.ID
		}
		if existing, ok := m.memories[clone.ID]; ok {
			clone.CreatedAt = existing.CreatedAt
		} else if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		clone.UpdatedAt = now
		m.memories[clone.ID] = clone
	}
	return nil
}

func (m *MemoryStore) DeleteMemories(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.memories, id)
	}
	return nil
}

func (m *MemoryStore) GetToolState(ctx context.Context, projectID string) (*ToolState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.toolStates[projectID]
	if !ok {
		return NewToolState(), nil
	}
	return state.Clone(), nil
}

func (m *MemoryStore) SaveToolState(ctx context.Context, projectID string, state *ToolState) error {
	if state == nil {
		return errors.New("tool state is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.toolStates[projectID] = state.Clone()
	return nil
}

func cloneChat(c *models.Chat) *models.Chat {
	clone := *c
	if c.Metadata != nil {
		clone.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	if msg.ToolCalls != nil {
		clone.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		copy(clone.ToolCalls, msg.ToolCalls)
	}
	if msg.ToolResults != nil {
		clone.ToolResults = make([]models.ToolResult, len(msg.ToolResults))
		copy(clone.ToolResults, msg.ToolResults)
	}
	if msg.Usage != nil {
		usage := *msg.Usage
		clone.Usage = &usage
	}
	return &clone
}

func cloneMemory(mem *models.Memory) *models.Memory {
	clone := *mem
	return &clone
}
