package tools

import (
	"github.com/nao-labs/nao-agent/internal/config"
)

// StaticTools builds the built-in tool set for a project.
func StaticTools(cfg *config.Config) []Tool {
	return []Tool{
		NewReadTool(cfg.ProjectDir),
		NewListTool(cfg.ProjectDir),
		NewSearchTool(cfg.ProjectDir),
		NewGrepTool(cfg.ProjectDir),
		NewSQLTool(cfg.Databases),
		NewFinalizeTool(),
	}
}
