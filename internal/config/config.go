// Package config provides configuration loading for diligenced.
package config

import (
	"fmt"
	"time"

	"github.com/fathomlabs/diligence/internal/logging"
)

// Config is the root configuration for diligenced.
type Config struct {
	Engine   EngineConfig   `koanf:"engine"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Server   ServerConfig   `koanf:"server"`
	Events   EventsConfig   `koanf:"events"`
	Reports  ReportsConfig  `koanf:"reports"`
	Logging  logging.Config `koanf:"logging"`
}

// EngineConfig configures the pipeline driver.
type EngineConfig struct {
	// TickInterval is the scheduler cadence while the pipeline is running.
	TickInterval time.Duration `koanf:"tick_interval"`

	// StepTimeout bounds a single external analysis call. Zero disables the
	// deadline: a stalled call then stalls the pipeline.
	StepTimeout time.Duration `koanf:"step_timeout"`

	// AutoMode starts the pipeline in automatic progression. Manual mode
	// requires an approval between every step transition.
	AutoMode bool `koanf:"auto_mode"`
}

// AnalysisConfig configures the external analysis service client.
type AnalysisConfig struct {
	// Provider selects the client implementation: http or llm.
	Provider string `koanf:"provider"`

	// BaseURL is the analysis service endpoint (http provider) or the
	// OpenAI-compatible API endpoint (llm provider).
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates llm provider calls.
	APIKey string `koanf:"api_key"`

	// Model is the model name for the llm provider.
	Model string `koanf:"model"`

	// Timeout bounds a single HTTP request to the service.
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EventsConfig configures the optional NATS event bridge.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ReportsConfig configures completed-report storage.
type ReportsConfig struct {
	// Dir is the directory completed reports are handed off to.
	Dir string `koanf:"dir"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive, got %s", c.Engine.TickInterval)
	}
	if c.Engine.StepTimeout < 0 {
		return fmt.Errorf("engine.step_timeout must not be negative, got %s", c.Engine.StepTimeout)
	}
	switch c.Analysis.Provider {
	case "http":
		if c.Analysis.BaseURL == "" {
			return fmt.Errorf("analysis.base_url is required for the http provider")
		}
	case "llm":
		if c.Analysis.Model == "" {
			return fmt.Errorf("analysis.model is required for the llm provider")
		}
	default:
		return fmt.Errorf("unknown analysis.provider %q (expected http or llm)", c.Analysis.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return fmt.Errorf("events.nats_url is required when events.enabled is true")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
