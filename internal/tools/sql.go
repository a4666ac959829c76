package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nao-labs/nao-agent/internal/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxRows  = 100
	sqlQueryTimeout = 60 * time.Second
)

// SQLTool executes read queries against the project's configured
// databases. Connections are opened lazily and reused.
type SQLTool struct {
	databases []config.DatabaseConfig

	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewSQLTool creates a SQL tool for the project's databases.
func NewSQLTool(databases []config.DatabaseConfig) *SQLTool {
	return &SQLTool{
		databases: databases,
		conns:     make(map[string]*sql.DB),
	}
}

// Close closes all opened connections.
func (t *SQLTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for name, db := range t.conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, name)
	}
	return firstErr
}

func (t *SQLTool) Name() string { return "sql" }

func (t *SQLTool) Description() string {
	names := make([]string, 0, len(t.databases))
	for _, db := range t.databases {
		names = append(names, db.Name)
	}
	return fmt.Sprintf("Run a SQL query against a configured database (%s) and return the rows.",
		strings.Join(names, ", "))
}

type sqlInput struct {
	Query    string `json:"query" jsonschema:"description=SQL query to execute"`
	Database string `json:"database,omitempty" jsonschema:"description=Database name from the project config. Defaults to the first configured database."`
}

func (t *SQLTool) Schema() json.RawMessage { return schemaFor(&sqlInput{}) }

func (t *SQLTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input sqlInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return Errorf("query is required"), nil
	}

	dbCfg, err := t.database(input.Database)
	if err != nil {
		return Errorf("%v", err), nil
	}
	db, err := t.open(dbCfg)
	if err != nil {
		return Errorf("connect to %s: %v", dbCfg.Name, err), nil
	}

	maxRows := dbCfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	queryCtx, cancel := context.WithTimeout(ctx, sqlQueryTimeout)
	defer cancel()

	rows, err := db.QueryContext(queryCtx, input.Query)
	if err != nil {
		return Errorf("query failed: %v", err), nil
	}
	defer rows.Close()

	rendered, err := renderRows(rows, maxRows)
	if err != nil {
		return Errorf("read rows: %v", err), nil
	}
	return &Result{Content: rendered}, nil
}

func (t *SQLTool) database(name string) (config.DatabaseConfig, error) {
	if len(t.databases) == 0 {
		return config.DatabaseConfig{}, fmt.Errorf("no databases configured for this project")
	}
	if name == "" {
		return t.databases[0], nil
	}
	for _, db := range t.databases {
		if db.Name == name {
			return db, nil
		}
	}
	return config.DatabaseConfig{}, fmt.Errorf("unknown database %q", name)
}

func (t *SQLTool) open(cfg config.DatabaseConfig) (*sql.DB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if db, ok := t.conns[cfg.Name]; ok {
		return db, nil
	}

	var driver, dsn string
	switch cfg.Type {
	case config.DatabasePostgres:
		driver, dsn = "postgres", cfg.DSN
	case config.DatabaseSQLite:
		driver, dsn = "sqlite", cfg.Path
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database %s has no connection configured", cfg.Name)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	t.conns[cfg.Name] = db
	return db, nil
}

// renderRows formats a result set as a markdown table, capped at
// maxRows with a truncation note.
func renderRows(rows *sql.Rows, maxRows int) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")

	count := 0
	truncated := false
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if count >= maxRows {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, len(cols))
		for i, v := range values {
			cells[i] = renderCell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "\n%d row(s)", count)
	if truncated {
		fmt.Fprintf(&b, " (truncated at %d)", maxRows)
	}
	return b.String(), nil
}

func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
