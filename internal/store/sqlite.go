package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// SQLiteStore implements Store on a local SQLite database. Suitable
// for single-node deployments; WAL mode keeps readers unblocked while
// the session manager writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		project_id TEXT NOT NULL,
		title      TEXT,
		metadata   TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		chat_id      TEXT NOT NULL REFERENCES chats(id),
		role         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		thinking     TEXT NOT NULL DEFAULT '',
		tool_calls   TEXT,
		tool_results TEXT,
		provider     TEXT,
		model        TEXT,
		stop_reason  TEXT,
		usage        TEXT,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		content    TEXT NOT NULL,
		category   TEXT NOT NULL,
		chat_id    TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at);

	CREATE TABLE IF NOT EXISTS tool_states (
		project_id TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = chat.CreatedAt

	metadata, err := marshalOrNull(chat.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, project_id, title, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.ProjectID, chat.Title, metadata,
		chat.CreatedAt.Format(time.RFC3339Nano), chat.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, project_id, title, metadata, created_at, updated_at
		 FROM chats WHERE id = ?`, id)

	var chat models.Chat
	var title, metadata sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&chat.ID, &chat.UserID, &chat.ProjectID, &title, &metadata, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chat.Title = title.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &chat.Metadata); err != nil {
			return nil, fmt.Errorf("chat %s: bad metadata: %w", id, err)
		}
	}
	chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	chat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &chat, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, thinking, tool_calls, tool_results,
		        provider, model, stop_reason, usage, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ChatID == "" {
		return fmt.Errorf("message chat id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	toolCalls, err := marshalOrNull(msg.ToolCalls)
	if err != nil {
		return err
	}
	toolResults, err := marshalOrNull(msg.ToolResults)
	if err != nil {
		return err
	}
	usage, err := marshalOrNull(msg.Usage)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, thinking, tool_calls, tool_results,
		                       provider, model, stop_reason, usage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content = excluded.content,
		   thinking = excluded.thinking,
		   tool_calls = excluded.tool_calls,
		   tool_results = excluded.tool_results,
		   provider = excluded.provider,
		   model = excluded.model,
		   stop_reason = excluded.stop_reason,
		   usage = excluded.usage`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, msg.Thinking,
		toolCalls, toolResults, msg.Provider, msg.Model, string(msg.StopReason),
		usage, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), msg.ChatID)
	return err
}

func (s *SQLiteStore) GetUserMemories(ctx context.Context, userID string) ([]*models.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, category, chat_id, created_at, updated_at
		 FROM memories WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		var mem models.Memory
		var category, createdAt, updatedAt string
		if err := rows.Scan(&mem.ID, &mem.UserID, &mem.Content, &category, &mem.ChatID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		mem.Category = models.MemoryCategory(category)
		mem.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		mem.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &mem)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertMemories(ctx context.Context, memories []*models.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, mem := range memories {
		if mem == nil {
			continue
		}
		if mem.ID == "" {
			mem.ID = uuid.NewString()
		}
		if mem.CreatedAt.IsZero() {
			mem.CreatedAt = now
		}
		mem.UpdatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memories (id, user_id, content, category, chat_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   content = excluded.content,
			   category = excluded.category,
			   chat_id = excluded.chat_id,
			   updated_at = excluded.updated_at`,
			mem.ID, mem.UserID, mem.Content, string(mem.Category), mem.ChatID,
			mem.CreatedAt.Format(time.RFC3339Nano), mem.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteMemories(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetToolState(ctx context.Context, projectID string) (*ToolState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state FROM tool_states WHERE project_id = ?`, projectID)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return NewToolState(), nil
	}
	if err != nil {
		return nil, err
	}

	state := NewToolState()
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("project %s: bad tool state: %w", projectID, err)
	}
	return state, nil
}

func (s *SQLiteStore) SaveToolState(ctx context.Context, projectID string, state *ToolState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_states (project_id, state, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		projectID, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var role, stopReason string
	var toolCalls, toolResults, provider, model, usage sql.NullString
	var createdAt string

	err := row.Scan(&msg.ID, &msg.ChatID, &role, &msg.Content, &msg.Thinking,
		&toolCalls, &toolResults, &provider, &model, &stopReason, &usage, &createdAt)
	if err != nil {
		return nil, err
	}
	msg.Role = models.Role(role)
	msg.Provider = provider.String
	msg.Model = model.String
	msg.StopReason = models.StopReason(stopReason)
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("message %s: bad tool calls: %w", msg.ID, err)
		}
	}
	if toolResults.Valid && toolResults.String != "" {
		if err := json.Unmarshal([]byte(toolResults.String), &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("message %s: bad tool results: %w", msg.ID, err)
		}
	}
	if usage.Valid && usage.String != "" {
		if err := json.Unmarshal([]byte(usage.String), &msg.Usage); err != nil {
			return nil, fmt.Errorf("message %s: bad usage: %w", msg.ID, err)
		}
	}
	msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &msg, nil
}

func marshalOrNull(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []models.ToolCall:
		if len(val) == 0 {
			return nil, nil
		}
	case []models.ToolResult:
		if len(val) == 0 {
			return nil, nil
		}
	case *models.Usage:
		if val == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
