package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao-labs/nao-agent/internal/session"
	"github.com/nao-labs/nao-agent/pkg/models"
)

func buildEvalCmd() *cobra.Command {
	var modelFlag, providerFlag string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "eval <prompt>",
		Short: "Run a single prompt to completion and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.manager.Start(cmd.Context(), session.StartRequest{
				UserID:    rt.userID,
				ProjectID: rt.cfg.ProjectName,
				Model:     modelSelectionFlags(providerFlag, modelFlag),
			})
			if err != nil {
				return err
			}

			prompt := strings.Join(args, " ")
			res, err := s.Generate([]models.Message{{Role: models.RoleUser, Content: prompt}})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(evalOutput{
					Text:       res.Text,
					StopReason: res.StopReason,
					ToolCalls:  len(res.ToolCalls),
					Usage:      res.Usage,
					DurationMS: res.Duration.Milliseconds(),
				})
			}

			fmt.Println(res.Text)
			if res.Usage != nil {
				fmt.Fprintf(os.Stderr, "[%s, %d tool calls, %d in / %d out tokens, %s]\n",
					res.StopReason, len(res.ToolCalls),
					res.Usage.InputTokens, res.Usage.OutputTokens, res.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&providerFlag, "provider", "", "model provider (anthropic or openai)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the result as JSON")
	return cmd
}

type evalOutput struct {
	Text       string            `json:"text"`
	StopReason models.StopReason `json:"stop_reason"`
	ToolCalls  int               `json:"tool_calls"`
	Usage      *models.Usage     `json:"usage,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}
