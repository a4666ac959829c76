package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadToolReadsProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models/revenue.sql", "select * from revenue")

	tool := NewReadTool(dir)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"models/revenue.sql"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}

	var out struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatal(err)
	}
	if out.Content != "select * from revenue" || out.Truncated {
		t.Errorf("read mismatch: %+v", out)
	}
}

func TestReadToolRejectsEscapingPaths(t *testing.T) {
	tool := NewReadTool(t.TempDir())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"../../etc/passwd"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(res.Content, "escapes") {
		t.Errorf("path traversal should be rejected: %+v", res)
	}
}

func TestListTool(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.sql", "")
	if err := os.Mkdir(filepath.Join(dir, "models"), 0o755); err != nil {
		t.Fatal(err)
	}

	tool := NewListTool(dir)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "a.sql") || !strings.Contains(res.Content, "models/") {
		t.Errorf("listing incomplete: %q", res.Content)
	}
}

func TestSearchToolGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models/core/revenue.sql", "")
	writeFile(t, dir, "models/staging/users.sql", "")
	writeFile(t, dir, "readme.md", "")

	tool := NewSearchTool(dir)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"pattern":"models/**/*.sql"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "models/core/revenue.sql") ||
		!strings.Contains(res.Content, "models/staging/users.sql") {
		t.Errorf("glob missed files: %q", res.Content)
	}
	if strings.Contains(res.Content, "readme.md") {
		t.Errorf("glob matched outside pattern: %q", res.Content)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.sql", "revenue.sql", true},
		{"*.sql", "models/revenue.sql", true},
		{"models/*.sql", "models/revenue.sql", true},
		{"models/*.sql", "models/core/revenue.sql", false},
		{"models/**/*.sql", "models/core/revenue.sql", true},
		{"models/**/*.sql", "models/a/b/c.sql", true},
		{"models/**/*.sql", "other/core/revenue.sql", false},
		{"**/*.md", "docs/guide.md", true},
		{"**", "anything/at/all", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestGrepToolFindsMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models/revenue.sql", "select amount\nfrom revenue\nwhere region = 'EU'")
	writeFile(t, dir, "models/users.sql", "select id from users")

	tool := NewGrepTool(dir)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"pattern":"revenue"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "models/revenue.sql:2:from revenue") {
		t.Errorf("missing path:line match: %q", res.Content)
	}
	if strings.Contains(res.Content, "users.sql") {
		t.Errorf("matched file without the pattern: %q", res.Content)
	}
}

func TestGrepToolInvalidPattern(t *testing.T) {
	tool := NewGrepTool(t.TempDir())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"pattern":"("}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Errorf("invalid regexp should be a tool error: %+v", res)
	}
}

func TestFinalizeToolIsUIOnly(t *testing.T) {
	tool := NewFinalizeTool()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"follow_ups":["How about Q3?"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.UIOnly {
		t.Error("finalize result should be UI-only")
	}
	if !strings.Contains(res.Content, "How about Q3?") {
		t.Errorf("follow-ups lost: %q", res.Content)
	}
	if !UIOnlyTools[tool.Name()] {
		t.Error("finalize must be registered as a UI-only tool")
	}
}
