// Package api exposes the HTTP surface: queue and cache inspection, search
// triggers and the websocket event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/scheduler"
	"github.com/fetcharr/fetcharr/internal/search"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/websocket"
)

// manualSearchTimeout bounds how long a manual-search request waits for the
// queue to run its item.
const manualSearchTimeout = 2 * time.Minute

// Dependencies are the already-constructed services the server exposes.
// The server owns nothing; wiring happens in main.
type Dependencies struct {
	Config    *config.Config
	Hub       *websocket.Hub
	Registry  *show.Registry
	Queue     *search.Queue
	Searcher  *search.Searcher
	Providers []*search.Provider
	Status    *status.Store
	Backlog   *search.Backlog
	History   *history.Store
	Scheduler *scheduler.Scheduler
}

// Server handles HTTP requests for the fetcharr API.
type Server struct {
	echo   *echo.Echo
	deps   Dependencies
	logger zerolog.Logger
}

// NewServer creates a new API server instance.
func NewServer(deps Dependencies, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.deps.Hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")

	api.GET("/status", s.getStatus)

	api.GET("/shows", s.listShows)

	api.GET("/queue", s.getQueue)

	api.GET("/providers", s.listProviders)
	api.GET("/providers/:id/cache", s.getProviderCache)
	api.POST("/providers/:id/refresh", s.refreshProvider)

	api.POST("/search/forced", s.forcedSearch)
	api.POST("/search/manual", s.manualSearch)
	api.POST("/search/failed", s.retryFailed)
	api.POST("/search/backlog", s.runBacklog)

	api.GET("/history", s.getHistory)

	api.GET("/tasks", s.listTasks)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
