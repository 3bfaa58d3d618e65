// Package http provides the HTTP server: routing, middleware assembly, and
// lifecycle management.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hordu-ma/wuhao-tutor-sub002/internal/config"
	guardHTTP "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/http"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/identity"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/metrics"
)

// Server represents the HTTP server.
type Server struct {
	server           *http.Server
	logger           *slog.Logger
	cfg              *config.Config
	engine           guardUseCase.Engine
	identityProvider identity.Provider
	metricsProvider  *metrics.Provider
}

// NewServer creates a new HTTP server. metricsProvider may be nil when
// metrics are disabled.
func NewServer(
	cfg *config.Config,
	engine guardUseCase.Engine,
	identityProvider identity.Provider,
	metricsProvider *metrics.Provider,
	logger *slog.Logger,
) *Server {
	s := &Server{
		logger:           logger,
		cfg:              cfg,
		engine:           engine,
		identityProvider: identityProvider,
		metricsProvider:  metricsProvider,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      s.createRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// createRouter assembles the middleware stack and routes.
func (s *Server) createRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(s.cfg.CORSEnabled, s.cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if s.cfg.MetricsEnabled && s.metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(s.metricsProvider.MeterProvider(), s.cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	identityMiddleware := guardHTTP.IdentityMiddleware(s.identityProvider)

	// Guard API: explicit checks, audit trail, cache management. These routes
	// are never themselves intercepted, so a denied subject can still ask why.
	api := router.Group("/api/v1", identityMiddleware)
	if s.cfg.RateLimitEnabled {
		api.Use(guardHTTP.RateLimitMiddleware(s.cfg.RateLimitRequestsPerSec, s.cfg.RateLimitBurst, s.logger))
	}

	guardHandler := guardHTTP.NewGuardHandler(s.engine, s.logger)
	guard := api.Group("/guard")
	guard.POST("/check", guardHandler.CheckHandler)
	guard.GET("/audit", guardHandler.AuditHandler)
	guard.POST("/cache/clear", guardHandler.ClearCacheHandler)

	// Application surface: every request under /app is evaluated against the
	// policy registry before reaching its handler.
	app := router.Group("/app", identityMiddleware,
		guardHTTP.RequestInterceptorMiddleware(s.engine, s.logger))
	app.Any("/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// healthHandler reports liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can evaluate policies.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"engine": "error"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"engine": "ok"},
	})
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
