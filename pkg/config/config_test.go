package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PARLANCE_PORT", "OPENAI_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "SEARCH_ENGINE_ID", "DATABASE_URL", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	configDir := filepath.Join(home, ".parlance")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !strings.HasPrefix(cfg.Database.DSN, filepath.Join(home, ".parlance")) {
		t.Fatalf("Database.DSN = %q, want it under the config dir", cfg.Database.DSN)
	}
	if cfg.LLM.DefaultModel != DefaultModel || cfg.LLM.ClassifierModel != DefaultModel {
		t.Fatalf("LLM models = %q/%q, want %q", cfg.LLM.DefaultModel, cfg.LLM.ClassifierModel, DefaultModel)
	}
	if cfg.Limits.WordLimit != DefaultWordLimit {
		t.Fatalf("Limits.WordLimit = %d, want %d", cfg.Limits.WordLimit, DefaultWordLimit)
	}
	if cfg.Limits.HistoryWindow != 5 {
		t.Fatalf("Limits.HistoryWindow = %d, want 5", cfg.Limits.HistoryWindow)
	}
	if cfg.Search.MaxResults != 2 || cfg.Search.MaxChars != 3000 {
		t.Fatalf("Search limits = %d/%d, want 2/3000", cfg.Search.MaxResults, cfg.Search.MaxChars)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("LLM.Provider = %q, want openai", cfg.LLM.Provider)
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	writeConfig(t, home, `
server:
  host: 0.0.0.0
  port: 9090
llm:
  provider: deepseek
  default_model: deepseek-chat
  classifier_model: deepseek-lite
  timeout: 30s
limits:
  max_prompt_tokens: 4000
session:
  cookie_name: sid
`)

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q, want %q", got, "0.0.0.0")
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
	if cfg.LLM.Provider != "deepseek" || cfg.LLM.ClassifierModel != "deepseek-lite" {
		t.Fatalf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("LLM.Timeout = %v, want 30s", cfg.LLM.Timeout)
	}
	if cfg.Limits.MaxPromptTokens != 4000 {
		t.Fatalf("Limits.MaxPromptTokens = %d, want 4000", cfg.Limits.MaxPromptTokens)
	}
	if cfg.Session.CookieName != "sid" {
		t.Fatalf("Session.CookieName = %q, want sid", cfg.Session.CookieName)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	writeConfig(t, home, "llm:\n  api_key: from-file\n")
	t.Setenv("OPENAI_KEY", "from-env")
	t.Setenv("GOOGLE_API_KEY", "google")
	t.Setenv("SEARCH_ENGINE_ID", "cx")
	t.Setenv("PARLANCE_PORT", "7070")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("LLM.APIKey = %q, want from-env", cfg.LLM.APIKey)
	}
	if cfg.Search.APIKey != "google" || cfg.Search.EngineID != "cx" {
		t.Fatalf("Search = %+v", cfg.Search)
	}
	if got := cfg.Port(); got != 7070 {
		t.Fatalf("cfg.Port() = %d, want 7070", got)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "port out of range", body: "server:\n  port: 70000\n"},
		{name: "unknown driver", body: "database:\n  driver: oracle\n"},
		{name: "redis without addr", body: "session:\n  backend: redis\n"},
		{name: "malformed yaml", body: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			clearEnv(t)
			writeConfig(t, home, tt.body)

			if _, _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error")
			}
		})
	}
}
