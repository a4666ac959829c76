// Package mcp implements a Model Context Protocol client and the
// project-scoped tool directory built on top of it: a declarative
// server config file is watched for changes, each declared server is
// connected over stdio or HTTP, and the tools it exposes are offered
// to sessions under per-project enablement state.
package mcp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TransportType selects how a server is reached.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// ServerConfig declares one external tool server. The name comes from
// the config file's map key.
type ServerConfig struct {
	Name      string        `yaml:"-" json:"-"`
	Transport TransportType `yaml:"transport" json:"transport"`

	// stdio transport
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`

	// http transport
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate rejects configurations that look like injection attempts
// before a process is ever spawned.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}
	switch c.Transport {
	case TransportStdio, "":
		return c.validateStdio()
	case TransportHTTP:
		return c.validateHTTP()
	default:
		return fmt.Errorf("server %s: unknown transport %q", c.Name, c.Transport)
	}
}

func (c *ServerConfig) validateStdio() error {
	if c.Command == "" {
		return fmt.Errorf("server %s: command is required for stdio transport", c.Name)
	}
	if err := validatePath(c.Command, "command"); err != nil {
		return fmt.Errorf("server %s: %w", c.Name, err)
	}
	if c.WorkDir != "" {
		if err := validatePath(c.WorkDir, "workdir"); err != nil {
			return fmt.Errorf("server %s: %w", c.Name, err)
		}
	}
	for i, arg := range c.Args {
		if containsShellMetachars(arg) {
			return fmt.Errorf("server %s: arg[%d] contains shell metacharacters: %q", c.Name, i, arg)
		}
	}
	return nil
}

func (c *ServerConfig) validateHTTP() error {
	if c.URL == "" {
		return fmt.Errorf("server %s: url is required for http transport", c.Name)
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("server %s: url must start with http:// or https://", c.Name)
	}
	return nil
}

func validatePath(path, field string) error {
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s contains path traversal: %q", field, path)
	}
	return nil
}

func containsShellMetachars(s string) bool {
	patterns := []string{
		"$(", "${", "`",
		"&&", "||", ";", "|",
		">", "<",
		"\n", "\r",
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// ToolSpec describes one tool exposed by a server.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolCallResult is the result of tools/call.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one content item of a tool result.
type ToolResultContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Text concatenates the text items of a tool result.
func (r *ToolCallResult) Text() string {
	var b strings.Builder
	for _, item := range r.Content {
		if item.Type == "text" {
			b.WriteString(item.Text)
		}
	}
	return b.String()
}

// JSON-RPC 2.0 wire types.

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// serverInfo identifies a connected server.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the result of the initialize handshake.
type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      serverInfo `json:"serverInfo"`
}

// listToolsResult is the result of tools/list.
type listToolsResult struct {
	Tools []*ToolSpec `json:"tools"`
}

// callToolParams are the parameters of tools/call.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
