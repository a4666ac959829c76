// Package store defines the persistence boundary for chats, messages,
// user memories, and per-project tool enablement. Two implementations
// ship: an in-memory store for tests and local runs, and a SQLite
// store for durable single-node deployments.
package store

import (
	"context"
	"errors"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface the orchestration core depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Chats
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]*models.Message, error)

	// UpsertMessage inserts a message or replaces it by id. The session
	// manager calls this once per finalized assistant message and once
	// per incoming user message.
	UpsertMessage(ctx context.Context, msg *models.Message) error

	// Memories
	GetUserMemories(ctx context.Context, userID string) ([]*models.Memory, error)
	UpsertMemories(ctx context.Context, memories []*models.Memory) error
	DeleteMemories(ctx context.Context, ids []string) error

	// Tool enablement, keyed by project id.
	GetToolState(ctx context.Context, projectID string) (*ToolState, error)
	SaveToolState(ctx context.Context, projectID string, state *ToolState) error
}

// ToolState records which external tool servers a project has seen and
// which of their tools are enabled. A server present in KnownServers
// never gets its tools re-enabled automatically; enablement after the
// first sighting belongs to the user.
type ToolState struct {
	KnownServers map[string]bool `json:"known_servers"`
	EnabledTools map[string]bool `json:"enabled_tools"`
}

// NewToolState returns an empty state.
func NewToolState() *ToolState {
	return &ToolState{
		KnownServers: map[string]bool{},
		EnabledTools: map[string]bool{},
	}
}

// Clone returns a deep copy.
func (s *ToolState) Clone() *ToolState {
	out := NewToolState()
	for k, v := range s.KnownServers {
		out.KnownServers[k] = v
	}
	for k, v := range s.EnabledTools {
		out.EnabledTools[k] = v
	}
	return out
}
