// Package session owns agent runs: one live session per chat, the
// model/tool loop with streaming output, pre-step pruning and cache
// segmentation, and tolerant finalization of persisted state.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/nao-labs/nao-agent/internal/config"
	"github.com/nao-labs/nao-agent/internal/llm"
	"github.com/nao-labs/nao-agent/internal/memory"
	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/internal/prompt"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/internal/tools"
	"github.com/nao-labs/nao-agent/pkg/models"
)

// ManagerConfig wires the session manager's collaborators.
type ManagerConfig struct {
	Store    store.Store
	Project  *config.Config
	Registry *tools.Registry
	Memory   *memory.Service
	Prompt   *prompt.Builder

	// NewProvider builds a model client per session. Defaults to llm.New.
	NewProvider func(sel models.ModelSelection) (llm.Provider, error)

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Manager tracks at most one live session per chat id. Starting a new
// session for a chat cancels and replaces any existing one in a single
// logical step.
type Manager struct {
	store       store.Store
	project     *config.Config
	registry    *tools.Registry
	memory      *memory.Service
	prompt      *prompt.Builder
	newProvider func(sel models.ModelSelection) (llm.Provider, error)
	logger      *observability.Logger
	metrics     *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:       cfg.Store,
		project:     cfg.Project,
		registry:    cfg.Registry,
		memory:      cfg.Memory,
		prompt:      cfg.Prompt,
		newProvider: cfg.NewProvider,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*Session),
	}
	if m.newProvider == nil {
		m.newProvider = func(sel models.ModelSelection) (llm.Provider, error) {
			return llm.New(sel, cfg.Logger, cfg.Metrics)
		}
	}
	if m.logger == nil {
		m.logger = observability.NewLogger(observability.LogConfig{})
	}
	return m
}

// StartRequest describes a session start.
type StartRequest struct {
	// ChatID selects an existing chat. Empty creates a new one.
	ChatID    string
	UserID    string
	ProjectID string
	Title     string

	// Model overrides the project and environment defaults.
	Model *models.ModelSelection
}

// Start resolves the model, creates or loads the chat, tears down any
// prior session for the chat id, and registers a fresh one.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	selection, err := m.project.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	provider, err := m.newProvider(selection)
	if err != nil {
		return nil, err
	}

	var chat *models.Chat
	chatCreated := false
	if req.ChatID == "" {
		chat = &models.Chat{
			UserID:    req.UserID,
			ProjectID: req.ProjectID,
			Title:     req.Title,
		}
		if err := m.store.CreateChat(ctx, chat); err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		chatCreated = true
	} else {
		chat, err = m.store.GetChat(ctx, req.ChatID)
		if err != nil {
			return nil, fmt.Errorf("load chat %s: %w", req.ChatID, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = observability.AddChatID(runCtx, chat.ID)
	runCtx = observability.AddUserID(runCtx, chat.UserID)
	runCtx = observability.AddProjectID(runCtx, chat.ProjectID)

	s := &Session{
		manager:     m,
		chat:        chat,
		chatCreated: chatCreated,
		selection:   selection,
		provider:    provider,
		ctx:         runCtx,
		cancel:      cancel,
	}

	m.mu.Lock()
	if prev, ok := m.sessions[chat.ID]; ok {
		prev.cancel()
	}
	m.sessions[chat.ID] = s
	m.mu.Unlock()

	return s, nil
}

// Get returns the live session for a chat id, if any.
func (m *Manager) Get(chatID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

// Stop cancels the live session for a chat id.
func (m *Manager) Stop(chatID string) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// release frees the chat's session slot so a new session can start.
// Only the owning session removes itself; a replacement that already
// took the slot stays.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.chat.ID]; ok && cur == s {
		delete(m.sessions, s.chat.ID)
	}
	m.mu.Unlock()
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}
