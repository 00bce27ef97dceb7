// Package config loads chatgraph settings: built-in defaults, then an optional
// YAML file, then environment overrides. CLI flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
	"github.com/petasbytes/go-chatgraph/internal/provider"
)

var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

const (
	IntentModeKeyword = "keyword"
	IntentModeLLM     = "llm"

	TraceOff    = "off"
	TraceStdout = "stdout"
)

type Config struct {
	APIKey        string            `yaml:"-"`
	Model         string            `yaml:"model"`
	SystemPrompt  string            `yaml:"system_prompt"`
	Temperature   float64           `yaml:"temperature"`
	MaxTokens     int64             `yaml:"max_tokens"`
	HistoryBudget int               `yaml:"history_budget"`
	IntentMode    string            `yaml:"intent_mode"`
	Store         checkpoint.Config `yaml:"store"`
	NATS          NATSConfig        `yaml:"nats"`
	Addr          string            `yaml:"addr"`
	Trace         string            `yaml:"trace"`
	LogMode       string            `yaml:"log_mode"`
	// LogLevel overrides the mode's default level when set.
	LogLevel      string            `yaml:"log_level"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"-"`
	Subject string `yaml:"subject"`
}

func Default() *Config {
	return &Config{
		Model:         string(provider.DefaultModel),
		SystemPrompt:  provider.DefaultSystemPrompt,
		Temperature:   provider.DefaultTemperature,
		MaxTokens:     provider.DefaultMaxTokens,
		HistoryBudget: provider.DefaultHistoryBudget,
		IntentMode:    IntentModeKeyword,
		Store:         checkpoint.Config{Backend: checkpoint.BackendMemory},
		Addr:          ":8080",
		Trace:         TraceOff,
		LogMode:       "dev",
	}
}

// Load builds the configuration. path may be empty, in which case
// CHATGRAPH_CONFIG is consulted; a missing file named there is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("CHATGRAPH_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = envStr("ANTHROPIC_API_KEY", cfg.APIKey)
	cfg.Model = envStr("CHATGRAPH_MODEL", cfg.Model)
	cfg.Store.Backend = envStr("CHATGRAPH_STORE", cfg.Store.Backend)
	cfg.Store.DSN = envStr("CHATGRAPH_DSN", cfg.Store.DSN)
	cfg.IntentMode = envStr("CHATGRAPH_INTENT_MODE", cfg.IntentMode)
	cfg.NATS.URL = envStr("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Token = envStr("NATS_TOKEN", cfg.NATS.Token)
	cfg.Trace = envStr("CHATGRAPH_TRACE", cfg.Trace)
	cfg.Addr = envStr("CHATGRAPH_ADDR", cfg.Addr)
	cfg.LogMode = envStr("LOG_MODE", cfg.LogMode)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("CHATGRAPH_HISTORY_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHATGRAPH_HISTORY_BUDGET %q: %w", v, err)
		}
		cfg.HistoryBudget = n
	}
	return nil
}

// Validate checks everything needed before a bot can be built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return c.ValidateOffline()
}

// ValidateOffline checks settings that do not involve the model credential;
// read-only commands such as history use it.
func (c *Config) ValidateOffline() error {
	switch c.IntentMode {
	case IntentModeKeyword, IntentModeLLM:
	default:
		return fmt.Errorf("invalid intent_mode %q (want %s or %s)", c.IntentMode, IntentModeKeyword, IntentModeLLM)
	}
	switch c.Trace {
	case "", TraceOff, TraceStdout:
	default:
		return fmt.Errorf("invalid trace %q (want %s or %s)", c.Trace, TraceOff, TraceStdout)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "", checkpoint.BackendMemory, checkpoint.BackendSQLite, checkpoint.BackendPostgres, checkpoint.BackendRedis:
	default:
		return fmt.Errorf("invalid store backend %q", c.Store.Backend)
	}
	if c.HistoryBudget < 0 {
		return fmt.Errorf("history_budget must be >= 0, got %d", c.HistoryBudget)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be within [0, 1], got %g", c.Temperature)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
