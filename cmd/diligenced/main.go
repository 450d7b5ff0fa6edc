// Diligenced runs the automated due-diligence pipeline over a business
// entity: six ordered analysis steps, each delegating to an external
// analysis service, exposed over an HTTP API with a server-sent event feed.
//
// Usage:
//
//	# Start the engine with defaults
//	diligenced serve --entity entity.json
//
//	# Configure via file and environment
//	diligenced serve --config config.yaml --entity entity.json
//	ENGINE_TICK_INTERVAL=1s diligenced serve --entity entity.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/config"
	"github.com/fathomlabs/diligence/internal/engine"
	"github.com/fathomlabs/diligence/internal/events"
	"github.com/fathomlabs/diligence/internal/httpapi"
	"github.com/fathomlabs/diligence/internal/logging"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/reportstore"
	"github.com/fathomlabs/diligence/internal/step"
	"github.com/fathomlabs/diligence/internal/step/processors"

	"github.com/prometheus/client_golang/prometheus"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	entityPath string
	agentName  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diligenced",
	Short: "Automated due-diligence pipeline engine",
	Long: `diligenced drives a multi-stage automated analysis over a business entity:
judge suitability, query history, query the knowledge base, build a causal
simulation, answer the challenge, and generate the final report.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline engine and HTTP API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("diligenced %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	serveCmd.Flags().StringVar(&entityPath, "entity", "", "path to the subject entity JSON file (required)")
	serveCmd.Flags().StringVar(&agentName, "agent", "diligence-agent", "analysis agent name")
	_ = serveCmd.MarkFlagRequired("entity")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	entity, err := loadEntity(entityPath)
	if err != nil {
		return err
	}
	agent := &pipeline.Agent{
		ID:    "agent-1",
		Name:  agentName,
		Model: cfg.Analysis.Model,
	}

	client, err := newAnalysisClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create analysis client: %w", err)
	}

	registry := step.NewRegistry(logger)
	processors.RegisterAll(registry, client)

	bus := events.NewBus(logger)
	defer bus.Close()

	var natsPub *events.NATSPublisher
	if cfg.Events.Enabled {
		natsPub, err = events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, bus, logger)
		if err != nil {
			return fmt.Errorf("failed to start NATS event bridge: %w", err)
		}
		defer natsPub.Close()
	}

	store, err := reportstore.NewStore(cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)
	eng := engine.New(engine.Config{
		TickInterval: cfg.Engine.TickInterval,
		StepTimeout:  cfg.Engine.StepTimeout,
		AutoMode:     cfg.Engine.AutoMode,
	}, registry, bus, store, entity, agent, metrics, logger)
	defer eng.Close()

	server, err := httpapi.NewServer(eng, bus, store, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("diligenced started",
		zap.String("version", version),
		zap.String("entity", entity.Name),
		zap.Bool("auto_mode", cfg.Engine.AutoMode),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// loadEntity reads the subject entity from a JSON file.
func loadEntity(path string) (*pipeline.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file %s: %w", path, err)
	}
	var entity pipeline.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode entity file %s: %w", path, err)
	}
	if entity.Name == "" {
		return nil, fmt.Errorf("entity file %s has no name", path)
	}
	return &entity, nil
}

// newAnalysisClient builds the analysis service client for the configured
// provider.
func newAnalysisClient(cfg *config.Config) (analysis.Client, error) {
	switch cfg.Analysis.Provider {
	case "llm":
		return analysis.NewLLMClient(analysis.LLMConfig{
			BaseURL: cfg.Analysis.BaseURL,
			APIKey:  cfg.Analysis.APIKey,
			Model:   cfg.Analysis.Model,
		})
	default:
		return analysis.NewHTTPClient(analysis.HTTPConfig{
			BaseURL: cfg.Analysis.BaseURL,
			Timeout: cfg.Analysis.Timeout,
		})
	}
}
