// Package main provides the CLI entry point for the nao analytics agent.
//
// nao answers business questions against a project: a directory holding
// a nao_config.yaml, model and documentation files, warehouse
// connections, skill files, and an optional external tool server
// directory.
//
// # Basic Usage
//
// Start an interactive chat in the current project:
//
//	nao-agent chat
//
// Run a single prompt without streaming, for scripts and evals:
//
//	nao-agent eval "what was revenue last month"
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - NAO_DEFAULT_PROVIDER / NAO_DEFAULT_MODEL: fallback model selection
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:           "nao-agent",
		Short:         "Data analytics agent for nao projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("project", ".", "project directory containing nao_config.yaml")
	root.PersistentFlags().String("user", "local", "user id for memories and chats")
	root.PersistentFlags().String("log-level", "", "override the configured log level")

	root.AddCommand(buildChatCmd())
	root.AddCommand(buildEvalCmd())
	root.AddCommand(buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nao-agent %s (%s)\n", version, commit)
		},
	}
}
