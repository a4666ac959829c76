// Package tools defines the agent's tool surface: a common Tool
// interface, the static built-in tools (file search, read, SQL,
// finalize), and a registry that merges them with dynamically
// discovered external tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// NamespaceSeparator joins an external server name and its tool name
// into one collision-free identifier, e.g. "github__search_issues".
const NamespaceSeparator = "__"

// NamespacedName builds the registry name of an external server's tool.
func NamespacedName(server, tool string) string {
	return server + NamespaceSeparator + tool
}

// Tool is one capability exposed to the model.
type Tool interface {
	// Name is the identifier used in model function calling.
	Name() string
	// Description tells the model when to use the tool.
	Description() string
	// Schema is the JSON Schema of the tool's parameters.
	Schema() json.RawMessage
	// Execute runs the tool. Failures the model can adapt to are
	// returned as an error Result, not an error value.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the output of one tool execution.
type Result struct {
	Content string
	IsError bool

	// UIOnly marks output that only feeds the user interface and
	// carries nothing the model needs on later turns.
	UIOnly bool
}

// Errorf builds an error Result the model can read and recover from.
func Errorf(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	payload, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return &Result{Content: msg, IsError: true}
	}
	return &Result{Content: string(payload), IsError: true}
}

// schemaFor reflects a JSON Schema from a tool's input struct.
// Descriptions come from jsonschema struct tags.
func schemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	payload, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

var compiledSchemas sync.Map

// ValidateParams checks params against a tool's schema before
// execution, so malformed model output becomes a readable tool error
// instead of a runtime failure inside the tool.
func ValidateParams(schema, params json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	key := string(schema)
	var compiled *schemavalidate.Schema
	if cached, ok := compiledSchemas.Load(key); ok {
		compiled = cached.(*schemavalidate.Schema)
	} else {
		var err error
		compiled, err = schemavalidate.CompileString("tool.schema.json", key)
		if err != nil {
			return fmt.Errorf("compile tool schema: %w", err)
		}
		compiledSchemas.Store(key, compiled)
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
