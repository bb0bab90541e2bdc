package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by Load.
//
// Example (~/.parlance/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 5000
// llm:
//   provider: openai
//   api_key: sk-...
// search:
//   api_key: ...
//   engine_id: ...
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Secrets may instead come from the environment (see applyEnv).
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host        *string  `yaml:"host"`
	Port        *int     `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres, mysql
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

type SessionConfig struct {
	Backend    string        `yaml:"backend"` // db or redis
	CookieName string        `yaml:"cookie_name"`
	MaxAge     time.Duration `yaml:"max_age"`
	Secure     bool          `yaml:"secure"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
}

type LLMConfig struct {
	Provider        string        `yaml:"provider"` // openai, deepseek, anthropic, ollama, google, qwen
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	DefaultModel    string        `yaml:"default_model"`
	ClassifierModel string        `yaml:"classifier_model"`
	ImageModel      string        `yaml:"image_model"`
	ImageAPIKey     string        `yaml:"image_api_key"`
	Timeout         time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	APIKey     string        `yaml:"api_key"`
	EngineID   string        `yaml:"engine_id"`
	Endpoint   string        `yaml:"endpoint"`
	MaxResults int           `yaml:"max_results"`
	MaxChars   int           `yaml:"max_chars"`
	Timeout    time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	CodeRoot  string `yaml:"code_root"`
}

type LimitsConfig struct {
	WordLimit       int `yaml:"word_limit"`
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
	HistoryWindow   int `yaml:"history_window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 5000

	DefaultModel         = "gpt-4o"
	DefaultImageModel    = "dall-e-3"
	DefaultSearchURL     = "https://www.googleapis.com/customsearch/v1"
	DefaultCookieName    = "parlance_session"
	DefaultWordLimit     = 50000
	DefaultPromptTokens  = 100000
	DefaultHistoryWindow = 5
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".parlance")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.parlance/config.yaml, applies environment overrides and defaults.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w in %s", err, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		LLM:    LLMConfig{Provider: "openai", DefaultModel: DefaultModel},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

// Validate checks values that have no sensible fallback.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return errors.New("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Session.Backend {
	case "db", "redis":
	default:
		return fmt.Errorf("unsupported session.backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.RedisAddr == "" {
		return errors.New("session.redis_addr is required for the redis backend")
	}
	return nil
}

func (c *AppConfig) Host() string {
	if c == nil {
		return DefaultHost
	}
	if c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil {
		return DefaultPort
	}
	if c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// applyEnv lets deployment secrets override the file. It runs once at startup;
// nothing else in the process reads these variables.
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("PARLANCE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = ptr(p)
		}
	}
	for _, k := range []string{"OPENAI_KEY", "OPENAI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			c.LLM.APIKey = v
			break
		}
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("SEARCH_ENGINE_ID"); v != "" {
		c.Search.EngineID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
}

func (c *AppConfig) applyDefaults(configDir string) {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = filepath.Join(configDir, "parlance.db")
	}

	if c.Session.Backend == "" {
		c.Session.Backend = "db"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultCookieName
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 30 * 24 * time.Hour
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = DefaultModel
	}
	if c.LLM.ClassifierModel == "" {
		c.LLM.ClassifierModel = c.LLM.DefaultModel
	}
	if c.LLM.ImageModel == "" {
		c.LLM.ImageModel = DefaultImageModel
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}

	if c.Search.Endpoint == "" {
		c.Search.Endpoint = DefaultSearchURL
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 2
	}
	if c.Search.MaxChars <= 0 {
		c.Search.MaxChars = 3000
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 15 * time.Second
	}

	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = filepath.Join(configDir, "uploads")
	}
	if c.Storage.CodeRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Storage.CodeRoot = wd
		}
	}

	if c.Limits.WordLimit <= 0 {
		c.Limits.WordLimit = DefaultWordLimit
	}
	if c.Limits.MaxPromptTokens <= 0 {
		c.Limits.MaxPromptTokens = DefaultPromptTokens
	}
	if c.Limits.HistoryWindow <= 0 {
		c.Limits.HistoryWindow = DefaultHistoryWindow
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func ptr[T any](v T) *T { return &v }
