package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nao-labs/nao-agent/internal/config"
	"github.com/nao-labs/nao-agent/internal/mcp"
	"github.com/nao-labs/nao-agent/internal/memory"
	"github.com/nao-labs/nao-agent/internal/observability"
	"github.com/nao-labs/nao-agent/internal/prompt"
	"github.com/nao-labs/nao-agent/internal/session"
	"github.com/nao-labs/nao-agent/internal/skills"
	"github.com/nao-labs/nao-agent/internal/store"
	"github.com/nao-labs/nao-agent/internal/tools"
)

// stateDirName holds the agent's local state inside a project.
const stateDirName = ".nao"

const defaultMetricsAddr = ":9090"

// runtime is the assembled application: config, storage, tool surface,
// and the session manager. Built once per command invocation.
type runtime struct {
	cfg       *config.Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	store     *store.SQLiteStore
	directory *mcp.Directory
	manager   *session.Manager
	userID    string

	metricsSrv *http.Server
}

// newRuntime loads the project at the --project flag and wires every
// subsystem. A directory without nao_config.yaml is a fatal error; the
// agent never runs against a guessed project.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	projectDir, _ := cmd.Flags().GetString("project")
	userID, _ := cmd.Flags().GetString("user")
	logLevel, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.TryLoad(projectDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w in %s", config.ErrNoProjectConfig, projectDir)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})

	var metrics *observability.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
		addr := cfg.Metrics.Addr
		if addr == "" {
			addr = defaultMetricsAddr
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(context.Background(), "metrics server failed", "error", err)
			}
		}()
		logger.Info(context.Background(), "metrics endpoint listening", "addr", addr)
	}

	stateDir := filepath.Join(cfg.ProjectDir, stateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	st, err := store.NewSQLiteStore(filepath.Join(stateDir, "agent.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := tools.NewRegistry(tools.StaticTools(cfg), cfg.Agent.DisabledTools, logger, metrics)

	directory := mcp.NewDirectory(st, logger, metrics)
	if path := cfg.ToolServersPath(); path != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := directory.Initialize(initCtx, cfg.ProjectName, path); err != nil {
			logger.Warn(initCtx, "external tool directory unavailable", "error", err)
		}
		cancel()
		registry.SetDynamicSource(directory)
	}

	var library *skills.Library
	if path := cfg.SkillsPath(); path != "" {
		library, err = skills.Load(path)
		if err != nil {
			logger.Warn(context.Background(), "skills not loaded", "dir", path, "error", err)
		}
	}

	memories := memory.NewService(memory.ServiceConfig{
		Store:   st,
		Logger:  logger,
		Metrics: metrics,
	})

	builder := prompt.NewBuilder(prompt.Config{
		ProjectName:  cfg.ProjectName,
		Memories:     memories,
		Skills:       library,
		MemoryBudget: cfg.Agent.MemoryTokenBudget,
	})

	manager := session.NewManager(session.ManagerConfig{
		Store:    st,
		Project:  cfg,
		Registry: registry,
		Memory:   memories,
		Prompt:   builder,
		Logger:   logger,
		Metrics:  metrics,
	})

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		store:      st,
		directory:  directory,
		manager:    manager,
		userID:     userID,
		metricsSrv: metricsSrv,
	}, nil
}

// Close tears the runtime down in dependency order.
func (r *runtime) Close() {
	r.manager.Shutdown()
	if r.directory != nil {
		if err := r.directory.Close(); err != nil {
			r.logger.Warn(context.Background(), "closing tool directory", "error", err)
		}
	}
	if r.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn(context.Background(), "closing store", "error", err)
	}
}
