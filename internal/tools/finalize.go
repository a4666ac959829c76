package tools

import (
	"context"
	"encoding/json"
)

// FinalizeToolName is the terminal tool: the model calls it to end the
// run and propose follow-up questions for the UI.
const FinalizeToolName = "finalize"

// FinalizeTool ends a run. Its result is UI-only: the follow-ups are
// rendered to the user and pruned from later model calls.
type FinalizeTool struct{}

// NewFinalizeTool creates the terminal finalize tool.
func NewFinalizeTool() *FinalizeTool { return &FinalizeTool{} }

func (t *FinalizeTool) Name() string { return FinalizeToolName }

func (t *FinalizeTool) Description() string {
	return "Call this when the answer is complete. Optionally suggest up to three short follow-up questions the user might ask next."
}

type finalizeInput struct {
	FollowUps []string `json:"follow_ups,omitempty" jsonschema:"description=Short follow-up questions to offer the user,maxItems=3"`
}

func (t *FinalizeTool) Schema() json.RawMessage { return schemaFor(&finalizeInput{}) }

func (t *FinalizeTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input finalizeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}

	payload, err := json.Marshal(map[string]any{"follow_ups": input.FollowUps})
	if err != nil {
		return Errorf("encode result: %v", err), nil
	}
	return &Result{Content: string(payload), UIOnly: true}, nil
}

// UIOnlyTools names tools whose call/result pairs carry nothing the
// model needs on later turns and are pruned before each model step.
var UIOnlyTools = map[string]bool{
	FinalizeToolName: true,
}
