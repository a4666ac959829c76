package mcp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseServersFileYAML(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok-123")
	data := []byte(`
github:
  transport: stdio
  command: github-mcp
  env:
    TOKEN: ${GITHUB_TOKEN}
metrics:
  transport: http
  url: https://metrics.internal/mcp
`)

	servers, err := ParseServersFile("tools.yaml", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	// Sorted by name.
	if servers[0].Name != "github" || servers[1].Name != "metrics" {
		t.Errorf("names: %s, %s", servers[0].Name, servers[1].Name)
	}
	if servers[0].Env["TOKEN"] != "tok-123" {
		t.Errorf("env placeholder not expanded: %q", servers[0].Env["TOKEN"])
	}
	if servers[1].Transport != TransportHTTP {
		t.Errorf("transport = %s", servers[1].Transport)
	}
}

func TestParseServersFileJSON5(t *testing.T) {
	data := []byte(`{
  // local dbt docs server
  dbt: { transport: "stdio", command: "dbt-mcp", args: ["serve"] },
}`)

	servers, err := ParseServersFile("tools.json5", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 || servers[0].Name != "dbt" || servers[0].Command != "dbt-mcp" {
		t.Fatalf("parsed %+v", servers)
	}
}

func TestParseServersFileDefaultsToStdio(t *testing.T) {
	servers, err := ParseServersFile("tools.yaml", []byte("local:\n  command: my-server\n"))
	if err != nil {
		t.Fatal(err)
	}
	if servers[0].Transport != TransportStdio {
		t.Errorf("transport = %s, want stdio", servers[0].Transport)
	}
}

func TestParseServersFileRejectsGarbage(t *testing.T) {
	if _, err := ParseServersFile("tools.yaml", []byte("{{{not yaml")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadServersFileMissingIsEmpty(t *testing.T) {
	servers, err := LoadServersFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if servers != nil {
		t.Errorf("missing file should be an empty directory, got %v", servers)
	}
}

func TestLoadServersFileReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte("a:\n  command: srv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	servers, err := LoadServersFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 || servers[0].Name != "a" {
		t.Fatalf("parsed %+v", servers)
	}
}

func TestServerConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"valid stdio", ServerConfig{Name: "a", Transport: TransportStdio, Command: "srv", Args: []string{"--port", "8080"}}, false},
		{"missing command", ServerConfig{Name: "a", Transport: TransportStdio}, true},
		{"shell metachars in args", ServerConfig{Name: "a", Command: "srv", Args: []string{"x; rm -rf /"}}, true},
		{"command substitution", ServerConfig{Name: "a", Command: "srv", Args: []string{"$(whoami)"}}, true},
		{"path traversal", ServerConfig{Name: "a", Command: "../../bin/sh"}, true},
		{"valid http", ServerConfig{Name: "a", Transport: TransportHTTP, URL: "https://x.test/mcp"}, false},
		{"bad scheme", ServerConfig{Name: "a", Transport: TransportHTTP, URL: "file:///etc/passwd"}, true},
		{"missing url", ServerConfig{Name: "a", Transport: TransportHTTP}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
