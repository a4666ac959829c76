package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads a project configuration file, expanding ${VAR} environment
// placeholders and resolving $include directives, then validates it.
func Load(path string) (*Config, error) {
	raw, err := loadRawRecursive(path, map[string]bool{})
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.ProjectDir = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// TryLoad looks for nao_config.yaml in dir. A missing file returns
// (nil, nil) so callers can distinguish "not a project directory" from
// a broken config.
func TryLoad(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Load(path)
}

// ToolServersPath resolves the tool server directory file against the
// project root. Empty when the project declares none.
func (c *Config) ToolServersPath() string {
	if c.ToolServersFile == "" {
		return ""
	}
	if filepath.IsAbs(c.ToolServersFile) {
		return c.ToolServersFile
	}
	return filepath.Join(c.ProjectDir, c.ToolServersFile)
}

// SkillsPath resolves the skills directory against the project root.
func (c *Config) SkillsPath() string {
	if c.SkillsDir == "" {
		return ""
	}
	if filepath.IsAbs(c.SkillsDir) {
		return c.SkillsDir
	}
	return filepath.Join(c.ProjectDir, c.SkillsDir)
}

// loadRawRecursive loads a config file into a raw map, resolving
// $include directives with cycle detection.
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawYAML([]byte(expanded))
	if err != nil {
		return nil, err
	}

	includes := extractIncludes(raw)

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRawRecursive(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}

	return mergeMaps(merged, raw), nil
}

func parseRawYAML(data []byte) (map[string]any, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("expected single YAML document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) []string {
	val, ok := raw[includeKey]
	if !ok {
		return nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// mergeMaps deep-merges src over dst. Nested maps merge recursively;
// everything else is replaced.
func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if existing, ok := out[k]; ok {
			if dstMap, ok := existing.(map[string]any); ok {
				if srcMap, ok := v.(map[string]any); ok {
					out[k] = mergeMaps(dstMap, srcMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// decodeRaw converts a merged raw map into a Config with strict field
// checking, so typos in nao_config.yaml fail loudly.
func decodeRaw(raw map[string]any) (*Config, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return &cfg, nil
}
