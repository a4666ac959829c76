package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao-labs/nao-agent/internal/llm"
	"github.com/nao-labs/nao-agent/internal/prompt"
	"github.com/nao-labs/nao-agent/internal/tools"
	"github.com/nao-labs/nao-agent/pkg/models"
)

const (
	defaultMaxSteps     = 20
	defaultStepTokens   = 4096
	defaultTokenCeiling = 32000

	// eventBuffer sizes the stream channel. Sends never block the run:
	// a consumer that disconnects or stalls loses events, not the run.
	eventBuffer = 256
)

// ErrRunActive is returned when Stream is called while a run is
// already in flight for this session.
var ErrRunActive = errors.New("session already has an active run")

// Session is one live agent run slot for a chat. It is created by
// Manager.Start and destroyed when its run finishes.
type Session struct {
	manager     *Manager
	chat        *models.Chat
	chatCreated bool
	selection   models.ModelSelection
	provider    llm.Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// Chat returns the chat this session is bound to.
func (s *Session) Chat() *models.Chat { return s.chat }

// Model returns the resolved model selection.
func (s *Session) Model() models.ModelSelection { return s.selection }

// Stop cancels the active run. The run observes the cancellation at
// its next step boundary, preserves partial output, and finalizes with
// an interrupted stop reason.
func (s *Session) Stop() { s.cancel() }

// Stream persists the user turn, schedules memory extraction, and
// starts the model/tool loop. Events arrive in loop order; exactly one
// terminal done or error event closes the channel.
func (s *Session) Stream(userMessages []models.Message) (<-chan models.StreamEvent, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunActive
	}
	s.running = true
	s.mu.Unlock()

	m := s.manager
	turn := m.prompt.Messages(userMessages)
	for i := range turn {
		turn[i].ChatID = s.chat.ID
		if turn[i].ID == "" {
			turn[i].ID = uuid.NewString()
		}
		if turn[i].CreatedAt.IsZero() {
			turn[i].CreatedAt = time.Now().UTC()
		}
		if err := m.store.UpsertMessage(s.ctx, &turn[i]); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return nil, fmt.Errorf("persist user message: %w", err)
		}
	}

	latest := prompt.LatestUserText(turn)
	if m.memory != nil && latest != "" {
		m.memory.ScheduleExtraction(s.chat.UserID, s.chat.ID, latest,
			m.project.ExtractorModel(s.selection))
	}

	events := make(chan models.StreamEvent, eventBuffer)
	go s.run(events, latest)
	return events, nil
}

// emit delivers an event without ever blocking the run. A full buffer
// means the consumer went away; the run continues for persistence.
func (s *Session) emit(events chan<- models.StreamEvent, ev models.StreamEvent) {
	ev.Time = time.Now().UTC()
	select {
	case events <- ev:
	default:
		s.manager.logger.Debug(s.ctx, "stream consumer not keeping up, dropping event",
			"event", string(ev.Type))
	}
}

func (s *Session) run(events chan<- models.StreamEvent, latestUserText string) {
	m := s.manager
	start := time.Now()
	if m.metrics != nil {
		m.metrics.RunStarted()
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(s.ctx, "run panicked", "panic", r)
			s.emit(events, models.StreamEvent{
				Type:         models.EventError,
				Err:          fmt.Errorf("internal error: %v", r),
				ErrorMessage: fmt.Sprintf("internal error: %v", r),
			})
		}
		close(events)
		s.cancel()
		m.release(s)
	}()

	if s.chatCreated {
		s.emit(events, models.StreamEvent{Type: models.EventChatCreated, Chat: s.chat})
	}

	result := s.loop(events, latestUserText)

	stopReason := result.stopReason
	if s.ctx.Err() != nil {
		stopReason = models.StopInterrupted
	}

	var usage *models.Usage
	if result.usageKnown {
		u := result.usage
		usage = &u
	} else {
		m.logger.Warn(s.ctx, "usage unavailable for run", "chat_id", s.chat.ID)
	}

	if m.metrics != nil {
		m.metrics.RunEnded(string(stopReason), time.Since(start).Seconds())
	}

	if result.err != nil && stopReason != models.StopInterrupted {
		s.emit(events, models.StreamEvent{
			Type:         models.EventError,
			StopReason:   models.StopError,
			Err:          result.err,
			ErrorMessage: result.err.Error(),
		})
		return
	}

	final := result.finalMessage
	if final != nil {
		final.StopReason = stopReason
		final.Usage = usage
		if err := m.store.UpsertMessage(context.Background(), final); err != nil {
			m.logger.Error(s.ctx, "failed to persist assistant message",
				"chat_id", s.chat.ID, "error", err)
			s.emit(events, models.StreamEvent{
				Type:         models.EventError,
				StopReason:   stopReason,
				Err:          err,
				ErrorMessage: fmt.Sprintf("response produced but not saved: %v", err),
			})
			return
		}
	}

	s.emit(events, models.StreamEvent{
		Type:       models.EventDone,
		Message:    final,
		StopReason: stopReason,
		Usage:      usage,
	})
}

// loopResult carries the loop's outcome into finalization.
type loopResult struct {
	finalMessage *models.Message
	stopReason   models.StopReason
	usage        models.Usage
	usageKnown   bool
	err          error
}

// loop drives model steps until a finish signal, a terminal tool, the
// cancellation token, or the output-token ceiling. At most one model
// call is in flight at a time.
func (s *Session) loop(events chan<- models.StreamEvent, latestUserText string) loopResult {
	m := s.manager

	res := loopResult{stopReason: models.StopEndTurn, usageKnown: true}

	history, err := m.store.ListMessages(s.ctx, s.chat.ID)
	if err != nil {
		res.err = fmt.Errorf("load history: %w", err)
		res.usageKnown = false
		return res
	}
	msgs := make([]models.Message, 0, len(history))
	for _, msg := range history {
		msgs = append(msgs, *msg)
	}

	system := m.prompt.System(s.ctx, s.chat.UserID, s.chat.ID, latestUserText)

	toolList := m.registry.Tools()
	defs := make([]llm.ToolDef, 0, len(toolList))
	for _, t := range toolList {
		defs = append(defs, llm.ToolDef{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}

	maxSteps := m.project.Agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	ceiling := m.project.Agent.MaxOutputTokens
	if ceiling <= 0 {
		ceiling = defaultTokenCeiling
	}

	for step := 0; step < maxSteps; step++ {
		if s.ctx.Err() != nil {
			res.stopReason = models.StopInterrupted
			return res
		}

		msgs = pruneForModel(msgs)

		req := &llm.Request{
			Model:     s.selection.Model,
			System:    system,
			Messages:  msgs,
			Tools:     defs,
			MaxTokens: defaultStepTokens,
		}
		if s.selection.SupportsPromptCaching() {
			req.Cache = llm.PromptCache{System: llm.CacheLong, LastMessage: llm.CacheShort}
		}

		assistant, streamErr := s.step(events, req)
		if assistant != nil && !assistant.IsEmpty() {
			if err := m.store.UpsertMessage(context.Background(), assistant); err != nil {
				m.logger.Warn(s.ctx, "failed to persist step message", "error", err)
			}
			msgs = append(msgs, *assistant)
			res.finalMessage = assistant
		}
		if streamErr != nil {
			if s.ctx.Err() != nil {
				res.stopReason = models.StopInterrupted
				return res
			}
			res.err = streamErr
			res.usageKnown = false
			res.stopReason = models.StopError
			return res
		}
		res.usage.Add(*assistant.Usage)

		if len(assistant.ToolCalls) == 0 {
			res.stopReason = assistant.StopReason
			if res.stopReason == "" || res.stopReason == models.StopToolUse {
				res.stopReason = models.StopEndTurn
			}
			return res
		}

		resultMsg, terminal := s.executeTools(events, assistant.ToolCalls)
		if !resultMsg.IsEmpty() {
			resultMsg.ChatID = s.chat.ID
			resultMsg.ID = uuid.NewString()
			resultMsg.CreatedAt = time.Now().UTC()
			if err := m.store.UpsertMessage(context.Background(), &resultMsg); err != nil {
				m.logger.Warn(s.ctx, "failed to persist tool results", "error", err)
			}
			msgs = append(msgs, resultMsg)
		}
		if terminal {
			res.stopReason = models.StopEndTurn
			return res
		}
		if res.usage.OutputTokens >= ceiling {
			res.stopReason = models.StopMaxTokens
			return res
		}
	}

	res.stopReason = models.StopMaxTokens
	return res
}

// step performs one model call, streaming deltas out and accumulating
// the assistant message.
func (s *Session) step(events chan<- models.StreamEvent, req *llm.Request) (*models.Message, error) {
	chunks, err := s.provider.Stream(s.ctx, req)
	if err != nil {
		return nil, err
	}

	assistant := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    s.chat.ID,
		Role:      models.RoleAssistant,
		Provider:  string(s.selection.Provider),
		Model:     s.selection.Model,
		Usage:     &models.Usage{},
		CreatedAt: time.Now().UTC(),
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			return assistant, chunk.Err
		}
		if chunk.Text != "" {
			assistant.Content += chunk.Text
			s.emit(events, models.StreamEvent{Type: models.EventTextDelta, Text: chunk.Text})
		}
		if chunk.Thinking != "" {
			assistant.Thinking += chunk.Thinking
			s.emit(events, models.StreamEvent{Type: models.EventThinkingDelta, Text: chunk.Thinking})
		}
		if chunk.ToolCall != nil {
			assistant.ToolCalls = append(assistant.ToolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			assistant.Usage.Add(chunk.Usage)
			assistant.StopReason = chunk.FinishReason
		}
	}
	return assistant, nil
}

// executeTools runs the step's tool calls in order. UI-only terminal
// tools end the loop after executing. Cancellation between calls stops
// further execution.
func (s *Session) executeTools(events chan<- models.StreamEvent, calls []models.ToolCall) (models.Message, bool) {
	m := s.manager
	resultMsg := models.Message{Role: models.RoleUser}
	terminal := false

	for i := range calls {
		call := calls[i]
		if s.ctx.Err() != nil {
			return resultMsg, true
		}

		s.emit(events, models.StreamEvent{Type: models.EventToolCall, ToolCall: &call})

		toolRes := models.ToolResult{ToolCallID: call.ID, Name: call.Name}
		execRes, err := m.registry.Execute(s.ctx, call.Name, call.Input)
		switch {
		case err != nil:
			toolRes.Content = err.Error()
			toolRes.IsError = true
		case execRes != nil:
			toolRes.Content = execRes.Content
			toolRes.IsError = execRes.IsError
			toolRes.UIOnly = execRes.UIOnly
		}

		s.emit(events, models.StreamEvent{Type: models.EventToolResult, ToolResult: &toolRes})
		resultMsg.ToolResults = append(resultMsg.ToolResults, toolRes)

		if tools.UIOnlyTools[call.Name] {
			terminal = true
		}
	}
	return resultMsg, terminal
}
