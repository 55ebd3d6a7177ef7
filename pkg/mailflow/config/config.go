// Package config loads engine settings from defaults, an optional YAML
// file, and MAILFLOW_ environment variables, in that order of precedence.
//
// Environment variables use a double underscore between levels and keep
// single underscores inside a key:
//
//	MAILFLOW_ENGINE__MAX_TICKS=500         -> engine.max_ticks
//	MAILFLOW_BRANCH__RETRY__MAX_ATTEMPTS=3 -> branch.retry.max_attempts
//	MAILFLOW_JOURNAL__DRIVER=sqlite        -> journal.driver
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "MAILFLOW_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Engine    EngineConfig    `koanf:"engine"`
	Branch    BranchConfig    `koanf:"branch"`
	LLM       LLMConfig       `koanf:"llm"`
	Journal   JournalConfig   `koanf:"journal"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type EngineConfig struct {
	RefreshTime    time.Duration `koanf:"refresh_time" validate:"gt=0"`
	MaxTicks       int           `koanf:"max_ticks" validate:"min=1"`
	MaxConcurrency int           `koanf:"max_concurrency" validate:"min=0"` // 0 is unbounded
}

type BranchConfig struct {
	Retry           RetryConfig   `koanf:"retry"`
	AbortOn         AbortOnConfig `koanf:"abort_on"`
	StrictTemplates bool          `koanf:"strict_templates"`
}

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1"`
	InitialBackoff time.Duration `koanf:"initial_backoff" validate:"min=0"`
	MaxBackoff     time.Duration `koanf:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// AbortOnConfig selects the node kinds whose failures end the branch.
type AbortOnConfig struct {
	System      bool `koanf:"system"`
	Instruction bool `koanf:"instruction"`
	Action      bool `koanf:"action"`
	Agent       bool `koanf:"agent"`
}

type LLMConfig struct {
	Command   string        `koanf:"command"` // CLI used by llm.CommandClient; empty disables chat
	Model     string        `koanf:"model"`
	MaxTokens int           `koanf:"max_tokens" validate:"min=0"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=0"`
}

type JournalConfig struct {
	Driver string `koanf:"driver" validate:"oneof=none memory sqlite"`
	Path   string `koanf:"path" validate:"required_if=Driver sqlite"`
}

type TelemetryConfig struct {
	Metrics bool `koanf:"metrics"`
	Tracing bool `koanf:"tracing"`
}

var defaults = map[string]any{
	"log.level":                    "info",
	"log.format":                   "text",
	"engine.refresh_time":          "10ms",
	"engine.max_ticks":             10000,
	"engine.max_concurrency":       0,
	"branch.retry.max_attempts":    1,
	"branch.retry.initial_backoff": "200ms",
	"branch.retry.max_backoff":     "5s",
	"branch.abort_on.system":       false,
	"branch.abort_on.instruction":  false,
	"branch.abort_on.action":       false,
	"branch.abort_on.agent":        false,
	"branch.strict_templates":      false,
	"llm.command":                  "",
	"llm.model":                    "",
	"llm.max_tokens":               0,
	"llm.timeout":                  "2m",
	"journal.driver":               "none",
	"journal.path":                 "",
	"telemetry.metrics":            false,
	"telemetry.tracing":            false,
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps MAILFLOW_BRANCH__RETRY__MAX_ATTEMPTS to branch.retry.max_attempts.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
