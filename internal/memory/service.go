package memory

import (
	"context"
	"strings"
	"time"

	"github.com/nao-labs/nao-agent/internal/llm"
	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/pkg/models"
)

const (
	// defaultMinInputChars skips extraction for trivially short turns
	// ("yes", "ok") that cannot carry durable information.
	defaultMinInputChars = 20
	// defaultExtractionTimeout bounds one background extraction run.
	defaultExtractionTimeout = 60 * time.Second
)

// ServiceConfig configures the memory service.
type ServiceConfig struct {
	Store store.Store

	// NewProvider builds a model client for the extractor selection.
	// Defaults to llm.New.
	NewProvider func(sel models.ModelSelection) (llm.Provider, error)

	// MinInputChars is the minimum user input length that triggers
	// extraction. Zero selects the default.
	MinInputChars int
	// Timeout bounds a background extraction run. Zero selects the
	// default.
	Timeout time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Service reads memories for prompt injection and reconciles them in
// the background after user turns. Memory is an enhancement: every
// read failure degrades to an empty set and extraction failures are
// logged, never surfaced to the conversation.
type Service struct {
	store       store.Store
	newProvider func(sel models.ModelSelection) (llm.Provider, error)

	minInputChars int
	timeout       time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a memory service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:         cfg.Store,
		newProvider:   cfg.NewProvider,
		minInputChars: cfg.MinInputChars,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
	if s.newProvider == nil {
		s.newProvider = func(sel models.ModelSelection) (llm.Provider, error) {
			return llm.New(sel, cfg.Logger, cfg.Metrics)
		}
	}
	if s.minInputChars <= 0 {
		s.minInputChars = defaultMinInputChars
	}
	if s.timeout <= 0 {
		s.timeout = defaultExtractionTimeout
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.LogConfig{})
	}
	return s
}

// UserMemories returns the user's memories in injection order. When
// excludeChatID is set, memories scoped exclusively to that chat are
// omitted so a chat never re-reads notes about itself. Read failures
// return an empty set.
func (s *Service) UserMemories(ctx context.Context, userID, excludeChatID string) []*models.Memory {
	all, err := s.store.GetUserMemories(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "memory read failed, continuing without memories", "error", err)
		return nil
	}

	memories := make([]*models.Memory, 0, len(all))
	for _, mem := range all {
		if excludeChatID != "" && mem.ChatID == excludeChatID {
			continue
		}
		memories = append(memories, mem)
	}
	SortForInjection(memories)
	return memories
}

// ForPrompt returns the budgeted memory subset for prompt injection.
func (s *Service) ForPrompt(ctx context.Context, userID, excludeChatID string, budget int) []*models.Memory {
	return SelectWithinBudget(s.UserMemories(ctx, userID, excludeChatID), budget)
}

// ScheduleExtraction starts a background reconciliation of the user's
// memories against one user turn. It returns immediately; the caller's
// run is never blocked or failed by extraction.
func (s *Service) ScheduleExtraction(userID, chatID, input string, extractor models.ModelSelection) {
	if len(strings.TrimSpace(input)) < s.minInputChars {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(context.Background(), "memory extraction panic", "panic", r)
				if s.metrics != nil {
					s.metrics.RecordMemoryExtraction("panic")
				}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		ctx = observability.AddUserID(observability.AddChatID(ctx, chatID), userID)

		if err := s.extract(ctx, userID, chatID, input, extractor); err != nil {
			s.logger.Warn(ctx, "memory extraction failed", "error", err)
			if s.metrics != nil {
				s.metrics.RecordMemoryExtraction("error")
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordMemoryExtraction("ok")
		}
	}()
}

// extract runs one reconciliation: show the extractor model the current
// memory set and the new turn, then apply the returned set as a diff.
func (s *Service) extract(ctx context.Context, userID, chatID, input string, extractor models.ModelSelection) error {
	existing, err := s.store.GetUserMemories(ctx, userID)
	if err != nil {
		return err
	}

	provider, err := s.newProvider(extractor)
	if err != nil {
		return err
	}

	chunks, err := provider.Stream(ctx, &llm.Request{
		Model:     extractor.Model,
		System:    extractionSystemPrompt,
		Messages:  []models.Message{{Role: models.RoleUser, Content: buildExtractionInput(existing, input)}},
		MaxTokens: extractionMaxTokens,
	})
	if err != nil {
		return err
	}
	result, err := llm.Collect(chunks)
	if err != nil {
		return err
	}

	proposed, err := parseExtraction(result.Text)
	if err != nil {
		return err
	}

	diff := reconcile(existing, proposed, userID, chatID)
	return s.apply(ctx, userID, diff)
}

// diffResult is the outcome of reconciling the extractor's proposed set
// against the stored one.
type diffResult struct {
	upserts []*models.Memory
	deletes []string
}

// reconcile computes a minimal diff. Proposed entries carrying a known
// id update that row in place; entries without an id insert; stored
// ids absent from the proposal delete. Entries whose content and
// category are unchanged generate no write at all, so a proposal that
// reproduces the stored set verbatim is a no-op.
func reconcile(existing []*models.Memory, proposed []extractedMemory, userID, chatID string) diffResult {
	byID := make(map[string]*models.Memory, len(existing))
	for _, mem := range existing {
		byID[mem.ID] = mem
	}

	var diff diffResult
	seen := make(map[string]bool, len(proposed))
	now := time.Now().UTC()

	for _, p := range proposed {
		content := Normalize(p.Content)
		if content == "" {
			continue
		}
		category := models.ParseMemoryCategory(p.Category)

		if cur, ok := byID[p.ID]; p.ID != "" && ok {
			seen[p.ID] = true
			if cur.Content == content && cur.Category == category {
				continue
			}
			updated := *cur
			updated.Content = content
			updated.Category = category
			updated.UpdatedAt = now
			diff.upserts = append(diff.upserts, &updated)
			continue
		}

		mem := &models.Memory{
			UserID:    userID,
			Content:   content,
			Category:  category,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if p.Scope == scopeChat {
			mem.ChatID = chatID
		}
		diff.upserts = append(diff.upserts, mem)
	}

	for _, mem := range existing {
		if !seen[mem.ID] {
			diff.deletes = append(diff.deletes, mem.ID)
		}
	}
	return diff
}

func (s *Service) apply(ctx context.Context, userID string, diff diffResult) error {
	if len(diff.deletes) > 0 {
		if err := s.store.DeleteMemories(ctx, diff.deletes); err != nil {
			return err
		}
	}
	if len(diff.upserts) > 0 {
		if err := s.store.UpsertMemories(ctx, diff.upserts); err != nil {
			return err
		}
	}
	if len(diff.upserts) > 0 || len(diff.deletes) > 0 {
		s.logger.Debug(ctx, "memories reconciled",
			"user_id", userID,
			"upserted", len(diff.upserts),
			"deleted", len(diff.deletes))
	}
	return nil
}
