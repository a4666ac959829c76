package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nao-labs/nao-agent/internal/observability"
)

const protocolVersion = "2024-11-05"

// Client speaks MCP to a single tool server.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *observability.Logger

	mu    sync.RWMutex
	tools []*ToolSpec
	info  serverInfo
}

// NewClient creates a client for one declared server.
func NewClient(cfg *ServerConfig, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Client{
		config:    cfg,
		transport: newTransport(cfg, logger),
		logger:    logger.WithFields("server", cfg.Name),
	}
}

// Connect establishes the transport, performs the initialize handshake
// and fetches the server's tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return err
	}
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "nao-agent",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.info = init.ServerInfo
	c.mu.Unlock()

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn(ctx, "initialized notification failed", "error", err)
	}

	if err := c.refreshTools(ctx); err != nil {
		c.transport.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	c.logger.Info(ctx, "connected to tool server",
		"name", init.ServerInfo.Name,
		"version", init.ServerInfo.Version,
		"tools", len(c.Tools()))
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Connected reports transport liveness.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp listToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// Tools returns the cached tool list from the last refresh.
func (c *Client) Tools() []*ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool invokes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	result, err := c.transport.Call(ctx, "tools/call", callToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}
