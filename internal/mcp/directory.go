package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nao-labs/nao-agent/internal/debounce"
	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/internal/tools"
)

// State is the directory's lifecycle phase for the bound project.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	// StateReady means every declared server connected.
	StateReady State = "ready"
	// StateFailedPartial means some servers connected and the rest carry
	// an error. The directory stays usable for the connected ones.
	StateFailedPartial State = "failed_partial"
)

// reloadDebounce coalesces rapid config-file writes into one reload.
const reloadDebounce = 2 * time.Second

// ServerStatus is the externally visible state of one declared server.
type ServerStatus struct {
	Name      string
	Connected bool
	Error     string
	Tools     []*ToolSpec
}

// serverClient is the slice of Client the directory needs. Tests
// substitute fakes.
type serverClient interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	Tools() []*ToolSpec
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error)
}

type serverEntry struct {
	config *ServerConfig
	client serverClient
	err    string
}

// Directory discovers external tools for one project: it loads the
// project's tool-server file, connects to each declared server, and
// exposes the enabled tools to the registry. The file is watched and
// reloads are debounced; per-project enablement lives in the store.
type Directory struct {
	store   store.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	// newClient is swapped out by tests.
	newClient func(cfg *ServerConfig) serverClient

	// reloadMu serializes loadState runs.
	reloadMu sync.Mutex

	mu         sync.Mutex
	state      State
	projectID  string
	configPath string
	servers    map[string]*serverEntry
	toolState  *store.ToolState
	watcher    *fsnotify.Watcher
	reloads    *debounce.Debouncer[string]

	// initDone collapses concurrent Initialize calls for the same
	// project into one in-flight initialization.
	initDone chan struct{}
	initErr  error
}

// NewDirectory creates an uninitialized directory.
func NewDirectory(st store.Store, logger *observability.Logger, metrics *observability.Metrics) *Directory {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	d := &Directory{
		store:   st,
		logger:  logger,
		metrics: metrics,
		state:   StateUninitialized,
		servers: make(map[string]*serverEntry),
	}
	d.newClient = func(cfg *ServerConfig) serverClient {
		return NewClient(cfg, logger)
	}
	return d
}

// Initialize binds the directory to a project, loads its server file
// and installs the file watcher. Concurrent calls for the same project
// share one in-flight initialization; switching projects tears the
// previous watcher and connections down first.
func (d *Directory) Initialize(ctx context.Context, projectID, configPath string) error {
	d.mu.Lock()
	if d.projectID == projectID && d.configPath == configPath {
		if d.initDone != nil {
			done := d.initDone
			d.mu.Unlock()
			<-done
			d.mu.Lock()
			err := d.initErr
			d.mu.Unlock()
			return err
		}
		if d.state != StateUninitialized {
			d.mu.Unlock()
			return nil
		}
	} else if d.projectID != "" {
		d.teardownLocked()
	}

	d.projectID = projectID
	d.configPath = configPath
	d.state = StateLoading
	done := make(chan struct{})
	d.initDone = done
	d.mu.Unlock()

	d.loadState(ctx)
	err := d.watch(configPath)
	if err != nil {
		d.logger.Warn(ctx, "tool directory watcher not installed", "error", err)
	}

	d.mu.Lock()
	d.initErr = err
	d.initDone = nil
	d.mu.Unlock()
	close(done)
	return err
}

// loadState re-reads the server file and reconnects every declared
// server in parallel. One server's failure never blocks the others; a
// parse failure yields an empty server set.
func (d *Directory) loadState(ctx context.Context) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	d.mu.Lock()
	projectID := d.projectID
	configPath := d.configPath
	old := d.servers
	d.state = StateLoading
	d.mu.Unlock()

	configs, err := LoadServersFile(configPath)
	if err != nil {
		d.logger.Warn(ctx, "tool server file unreadable, using empty server set",
			"path", configPath, "error", err)
		if d.metrics != nil {
			d.metrics.RecordDirectoryReload("parse_error")
		}
		configs = nil
	}

	for _, entry := range old {
		if entry.client != nil {
			entry.client.Close()
		}
	}

	entries := make(map[string]*serverEntry, len(configs))
	var wg sync.WaitGroup
	var entriesMu sync.Mutex
	for _, cfg := range configs {
		wg.Add(1)
		go func(cfg *ServerConfig) {
			defer wg.Done()
			entry := &serverEntry{config: cfg, client: d.newClient(cfg)}
			if err := entry.client.Connect(ctx); err != nil {
				entry.err = err.Error()
				entry.client = nil
				d.logger.Warn(ctx, "tool server connection failed",
					"server", cfg.Name, "error", err)
			}
			if d.metrics != nil {
				status := "ok"
				if entry.err != "" {
					status = "error"
				}
				d.metrics.RecordServerConnection(cfg.Name, status)
			}
			entriesMu.Lock()
			entries[cfg.Name] = entry
			entriesMu.Unlock()
		}(cfg)
	}
	wg.Wait()

	toolState := d.bookkeepNewServers(ctx, projectID, entries)

	failed := 0
	for _, entry := range entries {
		if entry.err != "" {
			failed++
		}
	}
	state := StateReady
	reloadStatus := "ok"
	if failed > 0 {
		state = StateFailedPartial
		reloadStatus = "partial"
	}
	if d.metrics != nil && err == nil {
		d.metrics.RecordDirectoryReload(reloadStatus)
	}

	d.mu.Lock()
	d.servers = entries
	d.toolState = toolState
	d.state = state
	d.mu.Unlock()

	d.logger.Info(ctx, "tool directory loaded",
		"project_id", projectID,
		"servers", len(entries),
		"failed", failed,
		"state", string(state))
}

// bookkeepNewServers enables all tools of first-seen servers and marks
// them known. Already-known servers keep their enablement untouched,
// even when their tool list changed.
func (d *Directory) bookkeepNewServers(ctx context.Context, projectID string, entries map[string]*serverEntry) *store.ToolState {
	toolState, err := d.store.GetToolState(ctx, projectID)
	if err != nil {
		d.logger.Warn(ctx, "tool state read failed, starting fresh", "error", err)
		toolState = store.NewToolState()
	}

	changed := false
	for name, entry := range entries {
		if entry.client == nil || toolState.KnownServers[name] {
			continue
		}
		toolState.KnownServers[name] = true
		for _, spec := range entry.client.Tools() {
			toolState.EnabledTools[tools.NamespacedName(name, spec.Name)] = true
		}
		changed = true
		d.logger.Info(ctx, "new tool server enabled",
			"server", name, "tools", len(entry.client.Tools()))
	}

	if changed {
		if err := d.store.SaveToolState(ctx, projectID, toolState); err != nil {
			d.logger.Warn(ctx, "tool state save failed", "error", err)
		}
	}
	return toolState
}

// watch installs a watcher on the server file's directory. Editors
// replace files on save, so the parent directory is watched and events
// are filtered by name.
func (d *Directory) watch(configPath string) error {
	if configPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(configPath), err)
	}

	reloads := debounce.New[string](
		debounce.WithDelay[string](reloadDebounce),
		debounce.WithOnFlush[string](func([]string) {
			d.loadState(context.Background())
		}),
	)

	d.mu.Lock()
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.reloads != nil {
		d.reloads.Stop()
	}
	d.watcher = watcher
	d.reloads = reloads
	d.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				reloads.Enqueue(event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn(context.Background(), "tool directory watcher error", "error", err)
			}
		}
	}()
	return nil
}

// State returns the directory's current phase.
func (d *Directory) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status reports every declared server, connected or not.
func (d *Directory) Status() []ServerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ServerStatus, 0, len(d.servers))
	for name, entry := range d.servers {
		status := ServerStatus{Name: name, Error: entry.err}
		if entry.client != nil {
			status.Connected = entry.client.Connected()
			status.Tools = entry.client.Tools()
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EnabledTools returns the connected servers' enabled tools wrapped as
// registry tools. Implements tools.DynamicSource.
func (d *Directory) EnabledTools() []tools.Tool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.toolState == nil {
		return nil
	}
	var out []tools.Tool
	for name, entry := range d.servers {
		if entry.client == nil || !entry.client.Connected() {
			continue
		}
		for _, spec := range entry.client.Tools() {
			full := tools.NamespacedName(name, spec.Name)
			if !d.toolState.EnabledTools[full] {
				continue
			}
			out = append(out, &externalTool{directory: d, server: name, spec: spec, fullName: full})
		}
	}
	return out
}

// SetToolEnabled flips one tool's enablement and persists it.
func (d *Directory) SetToolEnabled(ctx context.Context, toolName string, enabled bool) error {
	d.mu.Lock()
	if d.toolState == nil {
		d.toolState = store.NewToolState()
	}
	d.toolState.EnabledTools[toolName] = enabled
	snapshot := d.toolState.Clone()
	projectID := d.projectID
	d.mu.Unlock()

	return d.store.SaveToolState(ctx, projectID, snapshot)
}

// callTool dispatches to the owning server. Disabled and disconnected
// tools are rejected before any network call.
func (d *Directory) callTool(ctx context.Context, server, tool, fullName string, params json.RawMessage) (*tools.Result, error) {
	d.mu.Lock()
	if d.toolState == nil || !d.toolState.EnabledTools[fullName] {
		d.mu.Unlock()
		return tools.Errorf("tool %s is disabled", fullName), nil
	}
	entry, ok := d.servers[server]
	if !ok || entry.client == nil || !entry.client.Connected() {
		d.mu.Unlock()
		return tools.Errorf("tool server %s is not connected", server), nil
	}
	client := entry.client
	d.mu.Unlock()

	result, err := client.CallTool(ctx, tool, params)
	if err != nil {
		return tools.Errorf("%s: %v", fullName, err), nil
	}
	return &tools.Result{Content: result.Text(), IsError: result.IsError}, nil
}

// Close tears down the watcher and all server connections.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teardownLocked()
	return nil
}

func (d *Directory) teardownLocked() {
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
	if d.reloads != nil {
		d.reloads.Stop()
		d.reloads = nil
	}
	for _, entry := range d.servers {
		if entry.client != nil {
			entry.client.Close()
		}
	}
	d.servers = make(map[string]*serverEntry)
	d.toolState = nil
	d.projectID = ""
	d.configPath = ""
	d.state = StateUninitialized
}

// externalTool adapts one server tool to the registry interface.
type externalTool struct {
	directory *Directory
	server    string
	spec      *ToolSpec
	fullName  string
}

func (t *externalTool) Name() string { return t.fullName }

func (t *externalTool) Description() string {
	if t.spec.Description != "" {
		return t.spec.Description
	}
	return fmt.Sprintf("Tool %s provided by server %s.", t.spec.Name, t.server)
}

func (t *externalTool) Schema() json.RawMessage {
	if len(t.spec.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.spec.InputSchema
}

func (t *externalTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	return t.directory.callTool(ctx, t.server, t.spec.Name, t.fullName, params)
}
