// Package http provides the operational HTTP API for csphere.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/crosve/Csphere/internal/catalog"
	"github.com/crosve/Csphere/internal/embeddings"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/matcher"
	"github.com/crosve/Csphere/internal/secrets"
	"github.com/crosve/Csphere/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// FolderMatcher is the part of the matcher the API drives.
type FolderMatcher interface {
	RemoveFromFolder(ctx context.Context, folderID, contentID, userID string) error
	Explain(ctx context.Context, userID string, contentVector []float64, contentText, contentURL string) (*matcher.Explanation, error)
	ExplainContent(ctx context.Context, userID, contentID string) (*matcher.Explanation, error)
}

// MetadataUpdater replaces folder metadata and re-derives the profile.
type MetadataUpdater interface {
	UpdateMetadata(ctx context.Context, folderID string, meta folders.FolderMetadata) (*folders.Folder, error)
}

// Pinger checks the relational store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TelemetryReporter summarizes trace and metric export health.
type TelemetryReporter interface {
	Status() string
}

// Deps are the services behind the routes.
type Deps struct {
	Matcher   FolderMatcher
	Catalog   MetadataUpdater
	Embedder  embeddings.Embedder
	Scrubber  *secrets.Scrubber
	Store     Pinger
	Index     vectorstore.FolderIndex
	Telemetry TelemetryReporter
	Version   string
}

// Server provides HTTP endpoints for csphere.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Matcher == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("matcher and catalog are required")
	}
	if deps.Scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.DELETE("/folders/:folder_id/items/:content_id", s.handleRemoveItem)
	v1.PUT("/folders/:folder_id/metadata", s.handleUpdateMetadata)
	v1.POST("/match/explain", s.handleExplain)
	v1.POST("/scrub", s.handleScrub)
}

// errorHandler maps domain errors to status codes before echo's default
// handler writes the body.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = echo.NewHTTPError(statusFor(err), err.Error())
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, folders.ErrInvalidInput), errors.Is(err, folders.ErrMalformedPattern):
		return http.StatusBadRequest
	case errors.Is(err, folders.ErrFolderNotFound),
		errors.Is(err, folders.ErrContentNotFound),
		errors.Is(err, folders.ErrFolderItemNotFound),
		errors.Is(err, folders.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrFolderExists):
		return http.StatusConflict
	case errors.Is(err, folders.ErrEmbeddingOracleFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.deps.Version})
}

func (s *Server) handleReady(c echo.Context) error {
	resp := checkReadiness(c.Request().Context(), s.deps)
	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
		s.logger.Warn("not ready", zap.Any("checks", resp.Checks))
	}
	return c.JSON(status, resp)
}

func (s *Server) handleRemoveItem(c echo.Context) error {
	folderID := c.Param("folder_id")
	contentID := c.Param("content_id")
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	if err := s.deps.Matcher.RemoveFromFolder(c.Request().Context(), folderID, contentID, userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateMetadata(c echo.Context) error {
	var req MetadataRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid metadata request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	f, err := s.deps.Catalog.UpdateMetadata(c.Request().Context(), c.Param("folder_id"), req.FolderMetadata)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleExplain(c echo.Context) error {
	var req ExplainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	ctx := c.Request().Context()

	if req.ContentID != "" {
		ex, err := s.deps.Matcher.ExplainContent(ctx, req.UserID, req.ContentID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, ex)
	}

	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content_id or text is required")
	}
	if s.deps.Embedder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no embedder configured")
	}
	vec, err := s.deps.Embedder.Embed(ctx, s.deps.Scrubber.ScrubText(req.Text))
	if err != nil {
		return fmt.Errorf("%w: %v", folders.ErrEmbeddingOracleFailure, err)
	}
	ex, err := s.deps.Matcher.Explain(ctx, req.UserID, vec, req.Text, req.URL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ex)
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.deps.Scrubber.Scrub(req.Content)
	s.logger.Debug("scrubbed content",
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", result.Duration),
	)

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Text,
		FindingsCount: len(result.Findings),
		ByRule:        result.ByRule,
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

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
