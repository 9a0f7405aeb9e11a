package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cognicore.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[general]
state_db = "/tmp/cognicore-test.db"
log_level = "debug"

[provider]
base_url = "https://api.deepseek.com"
model = "deepseek-chat"
timeout = "20s"

[tools]
default_timeout = "10s"
concurrency = 8
`

func TestLoadParsesValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.General.StateDB != "/tmp/cognicore-test.db" {
		t.Fatalf("General.StateDB = %q, want /tmp/cognicore-test.db", cfg.General.StateDB)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("General.LogLevel = %q, want debug", cfg.General.LogLevel)
	}
	if cfg.Provider.Timeout.Duration != 20*time.Second {
		t.Fatalf("Provider.Timeout = %v, want 20s", cfg.Provider.Timeout.Duration)
	}
	if cfg.Tools.Concurrency != 8 {
		t.Fatalf("Tools.Concurrency = %d, want 8", cfg.Tools.Concurrency)
	}
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTestConfig(t, `
[general]
state_db = "/tmp/cognicore-test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.General.LogLevel != "info" {
		t.Fatalf("General.LogLevel default = %q, want info", cfg.General.LogLevel)
	}
	if cfg.Provider.BaseURL != "https://api.deepseek.com" {
		t.Fatalf("Provider.BaseURL default = %q, want https://api.deepseek.com", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Model != "deepseek-chat" {
		t.Fatalf("Provider.Model default = %q, want deepseek-chat", cfg.Provider.Model)
	}
	if cfg.Provider.Timeout.Duration != 30*time.Second {
		t.Fatalf("Provider.Timeout default = %v, want 30s", cfg.Provider.Timeout.Duration)
	}
	if cfg.Tools.DefaultTimeout.Duration != 15*time.Second {
		t.Fatalf("Tools.DefaultTimeout default = %v, want 15s", cfg.Tools.DefaultTimeout.Duration)
	}
	if cfg.Tools.Concurrency != 5 {
		t.Fatalf("Tools.Concurrency default = %d, want 5", cfg.Tools.Concurrency)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := writeTestConfig(t, `
[general]
state_db = "/tmp/cognicore-test.db"
log_level = "verbose"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want rejection of unknown log_level")
	}
}

func TestLoadRejectsMissingStateDB(t *testing.T) {
	path := writeTestConfig(t, `
[provider]
model = "deepseek-chat"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want rejection of empty state_db")
	}
}

func TestLoadExpandsHomeInStateDB(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}
	path := writeTestConfig(t, `
[general]
state_db = "~/cognicore.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := home + "/cognicore.db"
	if cfg.General.StateDB != want {
		t.Fatalf("General.StateDB = %q, want %q", cfg.General.StateDB, want)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	path := writeTestConfig(t, `
[general]
state_db = "/tmp/cognicore-test.db"

[provider]
base_url = "https://file-configured.example"
model = "file-model"
`)

	t.Setenv("COGNICAL_DEEPSEEK_API_KEY", "sk-from-env")
	t.Setenv("COGNICAL_DEEPSEEK_BASE_URL", "https://env-configured.example")
	t.Setenv("COGNICAL_DEEPSEEK_MODEL", "env-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider.APIKeyOverride != "sk-from-env" {
		t.Fatalf("Provider.APIKeyOverride = %q, want sk-from-env", cfg.Provider.APIKeyOverride)
	}
	if cfg.Provider.BaseURL != "https://env-configured.example" {
		t.Fatalf("Provider.BaseURL = %q, want env override to win", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Model != "env-model" {
		t.Fatalf("Provider.Model = %q, want env override to win", cfg.Provider.Model)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load() error = nil, want error for missing config file")
	}
}
