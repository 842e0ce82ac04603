// Package http provides the HTTP API for diagnosd.
package http

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

	"github.com/fyrsmithlabs/diagnosd/internal/engine"
	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
)

// Server provides HTTP endpoints for diagnosd.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	pack   *langpack.Pack
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(eng *engine.Engine, pack *langpack.Pack, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if pack == nil {
		return nil, fmt.Errorf("language pack cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9180,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
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
		pack:   pack,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/troubleshoot", s.handleStart)
	v1.POST("/troubleshoot/:session_id/feedback", s.handleFeedback)
	v1.GET("/troubleshoot/:session_id", s.handleGetSession)
	v1.GET("/languages", s.handleLanguages)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleLanguages lists the supported language codes.
func (s *Server) handleLanguages(c echo.Context) error {
	return c.JSON(http.StatusOK, LanguagesResponse{Languages: s.pack.Languages()})
}

// handleStart starts a troubleshooting session.
func (s *Server) handleStart(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Problem == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "problem field is required")
	}

	res, err := s.engine.Start(c.Request().Context(), engine.StartRequest{
		SessionID: req.SessionID,
		Problem:   req.Problem,
		Language:  req.Language,
		MachineID: req.MachineID,
		UserID:    req.UserID,
	})
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusCreated, newStartResponse(res))
}

// handleFeedback processes user feedback for a pending step.
func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StepID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "step_id field is required")
	}

	res, err := s.engine.ProcessUserFeedback(c.Request().Context(), c.Param("session_id"), req.StepID, req.Feedback)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, newFeedbackResponse(res))
}

// handleGetSession returns a session with its assessment and steps.
func (s *Server) handleGetSession(c echo.Context) error {
	sess, assessment, steps, err := s.engine.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(sess, assessment, steps))
}

// mapError folds the engine error taxonomy into HTTP statuses.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSessionNotFound), errors.Is(err, engine.ErrStepNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrSessionExists),
		errors.Is(err, engine.ErrStepAlreadyProcessed),
		errors.Is(err, engine.ErrSessionNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrAssessmentGeneration):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("unhandled engine error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
