package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fathomlabs/diligence/internal/logging"
)

// Load reads configuration from a YAML file, then overrides with environment
// variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (ENGINE_TICK_INTERVAL, ANALYSIS_BASE_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map section_field to section.field on the first
// underscore: ENGINE_TICK_INTERVAL -> engine.tick_interval. A missing config
// file is not an error; defaults plus environment apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment override. Split on the first underscore only so field
	// names keep their underscores: ENGINE_STEP_TIMEOUT -> engine.step_timeout.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = 2 * time.Second
	}
	if cfg.Analysis.Provider == "" {
		cfg.Analysis.Provider = "http"
	}
	if cfg.Analysis.Provider == "http" && cfg.Analysis.BaseURL == "" {
		cfg.Analysis.BaseURL = "http://localhost:8700"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 60 * time.Second
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8780
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "diligence.pipeline"
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "./reports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = logging.NewDefaultConfig().Fields
	}
}
