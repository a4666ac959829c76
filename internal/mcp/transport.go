package mcp

import (
	"context"
	"encoding/json"

	"github.com/nao-labs/nao-agent/internal/observability"
)

// Transport carries JSON-RPC messages to one server.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification. No response is expected.
	Notify(ctx context.Context, method string, params any) error

	Connected() bool
}

// newTransport builds the transport declared by the server config.
func newTransport(cfg *ServerConfig, logger *observability.Logger) Transport {
	if cfg.Transport == TransportHTTP {
		return newHTTPTransport(cfg, logger)
	}
	return newStdioTransport(cfg, logger)
}
