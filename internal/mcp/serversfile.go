package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// ParseServersFile decodes a tool-server directory file. The format is
// chosen by extension: .json/.json5 use JSON5, everything else YAML.
// Environment-variable placeholders in values are expanded before
// parsing.
func ParseServersFile(path string, data []byte) ([]*ServerConfig, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	raw := make(map[string]*ServerConfig)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(expanded, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	default:
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	}

	servers := make([]*ServerConfig, 0, len(raw))
	for name, cfg := range raw {
		if cfg == nil {
			continue
		}
		cfg.Name = name
		if cfg.Transport == "" {
			cfg.Transport = TransportStdio
		}
		servers = append(servers, cfg)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// LoadServersFile reads and parses a directory file. A missing file is
// an empty directory, not an error.
func LoadServersFile(path string) ([]*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseServersFile(path, data)
}
