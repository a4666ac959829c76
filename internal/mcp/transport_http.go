package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nao-labs/nao-agent/internal/observability"
)

// httpTransport posts JSON-RPC requests to a server endpoint.
type httpTransport struct {
	config *ServerConfig
	logger *observability.Logger
	client *http.Client

	connected atomic.Bool
}

func newHTTPTransport(cfg *ServerConfig, logger *observability.Logger) *httpTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	return &httpTransport{
		config: cfg,
		logger: logger.WithFields("server", cfg.Name, "transport", "http"),
		client: &http.Client{Timeout: timeout},
	}
}

func (t *httpTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("url is required for http transport")
	}
	t.connected.Store(true)
	return nil
}

func (t *httpTransport) Close() error {
	t.connected.Store(false)
	t.client.CloseIdleConnections()
	return nil
}

func (t *httpTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	req := jsonRPCRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = payload
	}

	body, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (t *httpTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := jsonRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = payload
	}
	_, err := t.post(ctx, notif)
	return err
}

func (t *httpTransport) Connected() bool {
	return t.connected.Load()
}

func (t *httpTransport) post(ctx context.Context, msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
