package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[server]
host = "127.0.0.1"
port = 9000

[upstream]
base_url = "http://127.0.0.1:11434"
timeout_seconds = 60
idle_connections = 50

[auth]
keys = ["k1", "k2"]

[log]
level = "debug"
format = "text"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Upstream.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("Upstream.BaseURL = %q, want %q", cfg.Upstream.BaseURL, "http://127.0.0.1:11434")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if want := []string{"k1", "k2"}; !reflect.DeepEqual(cfg.Auth.Keys, want) {
		t.Errorf("Auth.Keys = %v, want %v", cfg.Auth.Keys, want)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_NoConfigFile_UsesDefaults(t *testing.T) {
	// No explicit path and no file at the search paths: every setting
	// falls back to its default.
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("Upstream.BaseURL = %q, want %q", cfg.Upstream.BaseURL, "http://127.0.0.1:11434")
	}
	if cfg.Upstream.TimeoutSeconds != 0 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want 0 (no timeout)", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Upstream.IdleConnections != 100 {
		t.Errorf("Upstream.IdleConnections = %d, want %d", cfg.Upstream.IdleConnections, 100)
	}
	if len(cfg.Auth.Keys) != 0 {
		t.Errorf("Auth.Keys = %v, want empty", cfg.Auth.Keys)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_ExplicitConfigMissing(t *testing.T) {
	_, err := Load(cliWithPath(filepath.Join(t.TempDir(), "nope.toml")))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit config file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[server]
host = "10.0.0.1"
port = 8080

[upstream]
base_url = "http://10.0.0.2:11434"

[auth]
keys = ["from-file"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		Port:        1234,
		UpstreamURL: "http://example.com",
		APIKeys:     "a, b,, c",
		LogLevel:    "warn",
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want CLI override %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 1234 {
		t.Errorf("Server.Port = %d, want CLI override %d", cfg.Server.Port, 1234)
	}
	if cfg.Upstream.BaseURL != "http://example.com" {
		t.Errorf("Upstream.BaseURL = %q, want CLI override %q", cfg.Upstream.BaseURL, "http://example.com")
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(cfg.Auth.Keys, want) {
		t.Errorf("Auth.Keys = %v, want %v", cfg.Auth.Keys, want)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoad_KeySourceOverrides(t *testing.T) {
	cli := &CLI{
		APIKeysFile: "/tmp/keys.txt",
		APIKeysDB:   "/tmp/keys.sqlite",
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.KeysFile != "/tmp/keys.txt" {
		t.Errorf("Auth.KeysFile = %q, want %q", cfg.Auth.KeysFile, "/tmp/keys.txt")
	}
	if cfg.Auth.KeysDB != "/tmp/keys.sqlite" {
		t.Errorf("Auth.KeysDB = %q, want %q", cfg.Auth.KeysDB, "/tmp/keys.sqlite")
	}
}

func TestLoad_InvalidUpstreamScheme(t *testing.T) {
	_, err := Load(&CLI{UpstreamURL: "ftp://127.0.0.1"})
	if err == nil {
		t.Fatal("Load() expected error for non-http scheme, got nil")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("error = %q, want mention of http or https", err)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	_, err := Load(&CLI{Port: 70000})
	if err == nil {
		t.Fatal("Load() expected error for out-of-range port, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	_, err := Load(&CLI{LogLevel: "verbose"})
	if err == nil {
		t.Fatal("Load() expected error for bad log level, got nil")
	}
}

func TestLoad_MetricsPathConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[metrics]
enabled = true
path = "/v1/metrics"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics path under /v1, got nil")
	}
}

func TestSplitKeyList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"whitespace trimmed", " a , b ", []string{"a", "b"}},
		{"empties dropped", "a,,b,", []string{"a", "b"}},
		{"single", "only", []string{"only"}},
		{"all empty", " , ,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitKeyList(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitKeyList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	sc := &ServerConfig{Host: "0.0.0.0", Port: 3000}
	if got := sc.Addr(); got != "0.0.0.0:3000" {
		t.Errorf("Addr() = %q, want %q", got, "0.0.0.0:3000")
	}
}

func TestWarnPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "chmod 600") {
		t.Errorf("expected permissions warning for 0644 file, got %q", buf.String())
	}
}
