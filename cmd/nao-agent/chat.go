package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao-labs/nao-agent/internal/session"
	"github.com/nao-labs/nao-agent/pkg/models"
)

func buildChatCmd() *cobra.Command {
	var modelFlag, providerFlag string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat against the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runChat(cmd.Context(), rt, modelSelectionFlags(providerFlag, modelFlag))
		},
	}
	cmd.Flags().StringVar(&providerFlag, "provider", "", "model provider (anthropic or openai)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model name")
	return cmd
}

func modelSelectionFlags(provider, model string) *models.ModelSelection {
	if provider == "" && model == "" {
		return nil
	}
	return &models.ModelSelection{Provider: models.Provider(provider), Model: model}
}

func runChat(ctx context.Context, rt *runtime, model *models.ModelSelection) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("nao %s. Ctrl-D to quit.\n", rt.cfg.ProjectName)

	scanner := bufio.NewScanner(os.Stdin)
	chatID := ""
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s, err := rt.manager.Start(ctx, session.StartRequest{
			ChatID:    chatID,
			UserID:    rt.userID,
			ProjectID: rt.cfg.ProjectName,
			Model:     model,
		})
		if err != nil {
			return err
		}
		events, err := s.Stream([]models.Message{{Role: models.RoleUser, Content: line}})
		if err != nil {
			return err
		}

		// Ctrl-C mid-run stops the run, not the program.
		runDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-runDone:
			}
		}()

		for ev := range events {
			switch ev.Type {
			case models.EventChatCreated:
				chatID = ev.Chat.ID
			case models.EventTextDelta:
				fmt.Print(ev.Text)
			case models.EventToolCall:
				fmt.Fprintf(os.Stderr, "\n[tool %s]\n", ev.ToolCall.Name)
			case models.EventDone:
				fmt.Println()
				if ev.StopReason == models.StopInterrupted {
					fmt.Fprintln(os.Stderr, "[interrupted]")
				}
				if ev.Usage != nil {
					fmt.Fprintf(os.Stderr, "[%d in / %d out tokens, $%.4f]\n",
						ev.Usage.InputTokens, ev.Usage.OutputTokens, ev.Usage.CostUSD)
				}
			case models.EventError:
				fmt.Fprintf(os.Stderr, "\nError: %s\n", ev.ErrorMessage)
			}
		}
		close(runDone)

		if ctx.Err() != nil {
			return nil
		}
	}
}
