package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nao-labs/nao-agent/internal/observability"
)

// Tool parameter limits.
const (
	maxToolNameLength = 256
	maxToolParamsSize = 10 << 20
)

// DynamicSource supplies externally discovered tools. Only tools whose
// server is currently connected and which are enabled for the project
// are returned.
type DynamicSource interface {
	EnabledTools() []Tool
}

// Registry merges static built-in tools with a dynamic source and
// dispatches execution. Static tools are always present unless
// disabled in project settings; dynamic tools come and go with server
// connectivity and per-project enablement.
type Registry struct {
	mu       sync.RWMutex
	static   map[string]Tool
	disabled map[string]bool
	dynamic  DynamicSource

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRegistry creates a registry with the given static tools
// registered. Names listed in disabled are hidden from sessions.
func NewRegistry(static []Tool, disabled []string, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		static:   make(map[string]Tool, len(static)),
		disabled: make(map[string]bool, len(disabled)),
		logger:   logger,
		metrics:  metrics,
	}
	if r.logger == nil {
		r.logger = observability.NewLogger(observability.LogConfig{})
	}
	for _, t := range static {
		r.static[t.Name()] = t
	}
	for _, name := range disabled {
		r.disabled[name] = true
	}
	return r
}

// Register adds or replaces a static tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static[tool.Name()] = tool
}

// SetDynamicSource attaches the external tool directory.
func (r *Registry) SetDynamicSource(src DynamicSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic = src
}

// Tools returns the merged tool set exposed to a session, sorted by
// name. Static tools win name collisions; dynamic names are already
// namespaced by server so collisions only arise from misuse.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]Tool, len(r.static))
	if r.dynamic != nil {
		for _, t := range r.dynamic.EnabledTools() {
			merged[t.Name()] = t
		}
	}
	for name, t := range r.static {
		if r.disabled[name] {
			continue
		}
		merged[name] = t
	}

	out := make([]Tool, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Get looks a tool up by name in the merged set.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.static[name]; ok && !r.disabled[name] {
		return t, true
	}
	if r.dynamic != nil {
		for _, t := range r.dynamic.EnabledTools() {
			if t.Name() == name {
				return t, true
			}
		}
	}
	return nil, false
}

// Execute validates parameters against the tool's schema and runs it.
// Unknown tools and invalid parameters come back as error Results so
// the model can adapt.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if len(name) > maxToolNameLength {
		return Errorf("tool name exceeds %d characters", maxToolNameLength), nil
	}
	if len(params) > maxToolParamsSize {
		return Errorf("tool parameters exceed %d bytes", maxToolParamsSize), nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return Errorf("tool not found: %s", name), nil
	}

	if err := ValidateParams(tool.Schema(), params); err != nil {
		return Errorf("%s: %v", name, err), nil
	}

	source := "static"
	if _, isStatic := r.static[name]; !isStatic {
		source = "external"
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result != nil && result.IsError:
		status = "tool_error"
	}
	if r.metrics != nil {
		r.metrics.RecordToolExecution(name, source, status, elapsed.Seconds())
	}
	r.logger.Debug(ctx, "tool executed",
		"tool", name,
		"source", source,
		"status", status,
		"duration_ms", elapsed.Milliseconds())

	return result, err
}
