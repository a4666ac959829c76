package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultMaxReadBytes = 200_000

// ReadTool reads a project file with offset and size limits.
type ReadTool struct {
	resolver resolver
	maxBytes int
}

// NewReadTool creates a read tool scoped to the project directory.
func NewReadTool(projectDir string) *ReadTool {
	return &ReadTool{resolver: resolver{root: projectDir}, maxBytes: defaultMaxReadBytes}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a file from the project directory, with optional byte offset and limit."
}

type readInput struct {
	Path     string `json:"path" jsonschema:"description=Path relative to the project directory"`
	Offset   int64  `json:"offset,omitempty" jsonschema:"minimum=0,description=Byte offset to start reading from"`
	MaxBytes int    `json:"max_bytes,omitempty" jsonschema:"minimum=0,description=Maximum bytes to read"`
}

func (t *ReadTool) Schema() json.RawMessage { return schemaFor(&readInput{}) }

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input readInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}

	resolved, err := t.resolver.resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return Errorf("open file: %v", err), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Errorf("stat file: %v", err), nil
	}
	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return Errorf("seek file: %v", err), nil
		}
	}

	limit := t.maxBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return Errorf("read file: %v", err), nil
	}

	payload, err := json.Marshal(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"bytes":     len(buf),
		"truncated": input.Offset+int64(len(buf)) < info.Size(),
	})
	if err != nil {
		return Errorf("encode result: %v", err), nil
	}
	return &Result{Content: string(payload)}, nil
}

// ListTool lists a project directory.
type ListTool struct {
	resolver resolver
}

// NewListTool creates a directory listing tool scoped to the project.
func NewListTool(projectDir string) *ListTool {
	return &ListTool{resolver: resolver{root: projectDir}}
}

func (t *ListTool) Name() string { return "list_files" }

func (t *ListTool) Description() string {
	return "List the entries of a directory inside the project."
}

type listInput struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory relative to the project root. Defaults to the root."`
}

func (t *ListTool) Schema() json.RawMessage { return schemaFor(&listInput{}) }

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input listInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Errorf("list directory: %v", err), nil
	}

	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return &Result{Content: b.String()}, nil
}

// SearchTool finds project files whose relative path matches a glob
// pattern.
type SearchTool struct {
	resolver   resolver
	maxResults int
}

// NewSearchTool creates a file search tool scoped to the project.
func NewSearchTool(projectDir string) *SearchTool {
	return &SearchTool{resolver: resolver{root: projectDir}, maxResults: 200}
}

func (t *SearchTool) Name() string { return "search_files" }

func (t *SearchTool) Description() string {
	return "Find project files matching a glob pattern like models/**/*.sql."
}

type searchInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern matched against project-relative paths"`
}

func (t *SearchTool) Schema() json.RawMessage { return schemaFor(&searchInput{}) }

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input searchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return Errorf("pattern is required"), nil
	}

	root, err := t.resolver.resolve(".")
	if err != nil {
		return Errorf("%v", err), nil
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchGlob(input.Pattern, rel) {
			matches = append(matches, rel)
			if len(matches) >= t.maxResults {
				return fmt.Errorf("limit")
			}
		}
		return nil
	})
	if err != nil && err.Error() != "limit" && err != ctx.Err() {
		return Errorf("search: %v", err), nil
	}

	sort.Strings(matches)
	if len(matches) == 0 {
		return &Result{Content: "no files matched"}, nil
	}
	return &Result{Content: strings.Join(matches, "\n")}, nil
}

// matchGlob matches a project-relative path against a pattern where
// "**" crosses directory separators and "*" does not.
func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, path)
		if ok && err == nil {
			return true
		}
		// Bare filename patterns match at any depth.
		if !strings.ContainsRune(pattern, filepath.Separator) {
			ok, err = filepath.Match(pattern, filepath.Base(path))
			return ok && err == nil
		}
		return false
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], string(filepath.Separator))
	suffix := strings.TrimPrefix(parts[1], string(filepath.Separator))

	if prefix != "" {
		if !strings.HasPrefix(path, prefix+string(filepath.Separator)) && path != prefix {
			return false
		}
		path = strings.TrimPrefix(strings.TrimPrefix(path, prefix), string(filepath.Separator))
	}
	if suffix == "" {
		return true
	}
	if matchGlob(suffix, path) {
		return true
	}
	// Let "**" absorb any number of leading directories.
	for {
		i := strings.IndexRune(path, filepath.Separator)
		if i < 0 {
			return false
		}
		path = path[i+1:]
		if matchGlob(suffix, path) {
			return true
		}
	}
}
