package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nao-labs/nao-agent/pkg/models"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTryLoadMissingFileReturnsNil(t *testing.T) {
	cfg, err := TryLoad(t.TempDir())
	if err != nil {
		t.Fatalf("TryLoad: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config for empty directory, got %+v", cfg)
	}
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
project_name: revenue-analytics
llm:
  provider: anthropic
  model: claude-sonnet-4-5
databases:
  - name: warehouse
    type: postgres
    dsn: postgres://nao@localhost:5432/warehouse
tool_servers_file: tools.yaml
`)

	cfg, err := TryLoad(dir)
	if err != nil {
		t.Fatalf("TryLoad: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config")
	}
	if cfg.ProjectName != "revenue-analytics" {
		t.Errorf("ProjectName = %q", cfg.ProjectName)
	}
	if got := cfg.ToolServersPath(); got != filepath.Join(dir, "tools.yaml") {
		t.Errorf("ToolServersPath = %q", got)
	}
	if _, ok := cfg.Database("warehouse"); !ok {
		t.Error("warehouse database not found")
	}
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("WAREHOUSE_DSN", "postgres://nao:pw@db:5432/wh")
	dir := t.TempDir()
	writeConfig(t, dir, `
project_name: p
databases:
  - name: wh
    type: postgres
    dsn: ${WAREHOUSE_DSN}
`)

	cfg, err := TryLoad(dir)
	if err != nil {
		t.Fatalf("TryLoad: %v", err)
	}
	db, _ := cfg.Database("wh")
	if db.DSN != "postgres://nao:pw@db:5432/wh" {
		t.Errorf("DSN = %q, env placeholder not expanded", db.DSN)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
project_name: p
lllm:
  provider: anthropic
`)
	if _, err := TryLoad(dir); err == nil {
		t.Error("expected error for misspelled top-level key")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
llm:
  provider: anthropic
  model: claude-sonnet-4-5
`), 0o644); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, `
$include: base.yaml
project_name: p
llm:
  model: claude-opus-4-1
`)

	cfg, err := TryLoad(dir)
	if err != nil {
		t.Fatalf("TryLoad: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("included provider lost: %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-opus-4-1" {
		t.Errorf("local override lost: %q", cfg.LLM.Model)
	}
}

func TestResolveModelPriority(t *testing.T) {
	cfg := &Config{ProjectName: "p", LLM: LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5"}}

	// Explicit request wins over project config.
	req := &models.ModelSelection{Provider: models.ProviderOpenAI, Model: "gpt-4o"}
	sel, err := cfg.ResolveModel(req)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Provider != models.ProviderOpenAI {
		t.Errorf("explicit request should win, got %s", sel.Provider)
	}

	// Project config wins over environment.
	t.Setenv("OPENAI_API_KEY", "sk-test")
	sel, err = cfg.ResolveModel(nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Provider != models.ProviderAnthropic || sel.Model != "claude-sonnet-4-5" {
		t.Errorf("project config should win, got %+v", sel)
	}
}

func TestResolveModelEnvFallback(t *testing.T) {
	t.Setenv("NAO_DEFAULT_PROVIDER", "")
	t.Setenv("NAO_DEFAULT_MODEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &Config{ProjectName: "p"}
	sel, err := cfg.ResolveModel(nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Provider != models.ProviderOpenAI || sel.Model != DefaultOpenAIModel {
		t.Errorf("env fallback wrong: %+v", sel)
	}
}

func TestResolveModelNothingConfiguredIsFatal(t *testing.T) {
	t.Setenv("NAO_DEFAULT_PROVIDER", "")
	t.Setenv("NAO_DEFAULT_MODEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := &Config{ProjectName: "p"}
	if _, err := cfg.ResolveModel(nil); err != ErrNoModelConfig {
		t.Errorf("expected ErrNoModelConfig, got %v", err)
	}
}

func TestExtractorModelDefaults(t *testing.T) {
	cfg := &Config{ProjectName: "p"}
	sel := cfg.ExtractorModel(models.ModelSelection{Provider: models.ProviderAnthropic, Model: "claude-opus-4-1"})
	if sel.Model != DefaultAnthropicExtractorModel {
		t.Errorf("extractor model = %q", sel.Model)
	}

	cfg.LLM.ExtractorModel = "claude-3-haiku"
	sel = cfg.ExtractorModel(models.ModelSelection{Provider: models.ProviderAnthropic, Model: "claude-opus-4-1"})
	if sel.Model != "claude-3-haiku" {
		t.Errorf("configured extractor model ignored: %q", sel.Model)
	}
}

func TestValidateRejectsBadDatabase(t *testing.T) {
	cfg := &Config{
		ProjectName: "p",
		Databases:   []DatabaseConfig{{Name: "wh", Type: "mysql"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported database type")
	}

	cfg.Databases = []DatabaseConfig{
		{Name: "wh", Type: DatabasePostgres, DSN: "x"},
		{Name: "wh", Type: DatabaseSQLite, Path: "y"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate database name")
	}
}
