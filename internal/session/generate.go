package session

import (
	"time"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// RunResult is the collected outcome of a non-streaming run.
type RunResult struct {
	Text        string
	Thinking    string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
	StopReason  models.StopReason
	// Usage is nil when the run failed before usage was known.
	Usage    *models.Usage
	Duration time.Duration
}

// Generate runs the session to completion and collects the stream into
// a single result. Used by offline evaluation and scripted callers.
func (s *Session) Generate(userMessages []models.Message) (*RunResult, error) {
	start := time.Now()
	events, err := s.Stream(userMessages)
	if err != nil {
		return nil, err
	}

	res := &RunResult{}
	var runErr error
	for ev := range events {
		switch ev.Type {
		case models.EventTextDelta:
			res.Text += ev.Text
		case models.EventThinkingDelta:
			res.Thinking += ev.Text
		case models.EventToolCall:
			res.ToolCalls = append(res.ToolCalls, *ev.ToolCall)
		case models.EventToolResult:
			res.ToolResults = append(res.ToolResults, *ev.ToolResult)
		case models.EventDone:
			res.StopReason = ev.StopReason
			res.Usage = ev.Usage
		case models.EventError:
			res.StopReason = ev.StopReason
			runErr = ev.Err
		}
	}
	res.Duration = time.Since(start)
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}
