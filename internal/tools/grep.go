package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	grepMaxMatches  = 200
	grepMaxLineLen  = 500
	grepMaxFileSize = 2 << 20
)

// GrepTool searches project file contents with a regular expression.
type GrepTool struct {
	resolver resolver
}

// NewGrepTool creates a content search tool scoped to the project.
func NewGrepTool(projectDir string) *GrepTool {
	return &GrepTool{resolver: resolver{root: projectDir}}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search project file contents with a regular expression, returning path:line matches."
}

type grepInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Go regular expression to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory or file to search. Defaults to the project root."`
	Glob    string `json:"glob,omitempty" jsonschema:"description=Only search files whose relative path matches this glob"`
}

func (t *GrepTool) Schema() json.RawMessage { return schemaFor(&grepInput{}) }

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input grepInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return Errorf("invalid pattern: %v", err), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	start, err := t.resolver.resolve(input.Path)
	if err != nil {
		return Errorf("%v", err), nil
	}
	root, _ := t.resolver.resolve(".")

	var b strings.Builder
	matches := 0
	walkErr := filepath.WalkDir(start, func(path string, d os.DirEntry, err error) error {
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
		if input.Glob != "" && !matchGlob(input.Glob, rel) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > grepMaxFileSize {
			return nil
		}

		n, err := grepFile(path, rel, re, grepMaxMatches-matches, &b)
		if err != nil {
			return nil
		}
		matches += n
		if matches >= grepMaxMatches {
			return fmt.Errorf("limit")
		}
		return nil
	})
	if walkErr != nil && walkErr.Error() != "limit" && walkErr != ctx.Err() {
		return Errorf("search: %v", walkErr), nil
	}

	if matches == 0 {
		return &Result{Content: "no matches"}, nil
	}
	return &Result{Content: b.String()}, nil
}

func grepFile(path, rel string, re *regexp.Regexp, limit int, out *strings.Builder) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	matches := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(line) > grepMaxLineLen {
			line = line[:grepMaxLineLen] + "..."
		}
		fmt.Fprintf(out, "%s:%d:%s\n", rel, lineNo, line)
		matches++
		if matches >= limit {
			break
		}
	}
	return matches, nil
}
