// Package httpapi exposes the engine's public operations over HTTP for the
// presentation layer: pipeline control, step actions, state snapshots, the
// report, and a server-sent event feed of the engine's event stream.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/engine"
	"github.com/fathomlabs/diligence/internal/events"
	"github.com/fathomlabs/diligence/internal/reportstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints for the pipeline engine.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	bus    *events.Bus
	store  *reportstore.Store
	logger *zap.Logger
	config *Config
}

// NewServer creates the HTTP server.
func NewServer(eng *engine.Engine, bus *events.Bus, store *reportstore.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8780}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		engine: eng,
		bus:    bus,
		store:  store,
		logger: logger.Named("httpapi"),
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/pipeline", s.handleSnapshot)
	v1.GET("/pipeline/report", s.handleReport)
	v1.GET("/pipeline/events", s.handleEvents)
	v1.POST("/pipeline/start", s.handleStart)
	v1.POST("/pipeline/pause", s.handlePause)
	v1.POST("/pipeline/reset", s.handleReset)
	v1.PUT("/pipeline/mode", s.handleMode)
	v1.POST("/pipeline/steps/:index/approve", s.handleApprove)
	v1.POST("/pipeline/steps/:index/reject", s.handleReject)
	v1.POST("/pipeline/steps/:index/rerun", s.handleRerun)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Snapshot())
}

// ReportResponse is the response body for GET /api/v1/pipeline/report.
type ReportResponse struct {
	Report     any    `json:"report"`
	StorageKey string `json:"storageKey,omitempty"`
}

func (s *Server) handleReport(c echo.Context) error {
	snap := s.engine.Snapshot()
	if snap.Report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no report available yet")
	}
	return c.JSON(http.StatusOK, ReportResponse{
		Report:     snap.Report,
		StorageKey: snap.StorageKey,
	})
}

func (s *Server) handleStart(c echo.Context) error {
	s.engine.Start()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handlePause(c echo.Context) error {
	s.engine.Pause()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.engine.ResetAll(); err != nil {
		return s.actionError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// ModeRequest is the request body for PUT /api/v1/pipeline/mode.
type ModeRequest struct {
	Auto bool `json:"auto"`
}

func (s *Server) handleMode(c echo.Context) error {
	var req ModeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.engine.SetMode(req.Auto)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleApprove(c echo.Context) error {
	index, err := s.stepIndex(c)
	if err != nil {
		return err
	}
	if err := s.engine.Approve(index); err != nil {
		return s.actionError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleReject(c echo.Context) error {
	index, err := s.stepIndex(c)
	if err != nil {
		return err
	}
	if err := s.engine.Reject(index); err != nil {
		return s.actionError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// RerunRequest is the optional request body for a step rerun.
type RerunRequest struct {
	// Hint is a free-text hint for the retry, carried to the processor.
	Hint string `json:"hint"`
}

func (s *Server) handleRerun(c echo.Context) error {
	index, err := s.stepIndex(c)
	if err != nil {
		return err
	}
	var req RerunRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if err := s.engine.Rerun(index, req.Hint); err != nil {
		return s.actionError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) stepIndex(c echo.Context) (int, error) {
	var index int
	if err := echo.PathParamsBinder(c).Int("index", &index).BindError(); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid step index")
	}
	return index, nil
}

// actionError maps engine action failures to HTTP errors. A rejected action
// while a step is in flight is a conflict the caller can retry.
func (s *Server) actionError(err error) error {
	switch {
	case errors.Is(err, engine.ErrExecutionInFlight):
		return echo.NewHTTPError(http.StatusConflict, "a step execution is in flight")
	case errors.Is(err, engine.ErrIndexOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
