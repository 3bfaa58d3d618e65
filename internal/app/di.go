// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hordu-ma/wuhao-tutor-sub002/internal/config"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/ruleset"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/http"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/identity"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/metrics"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	metricsProvider *metrics.Provider
	decisionMetrics metrics.DecisionMetrics

	// Core components
	engine           guardUseCase.Engine
	identityProvider identity.Provider

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	metricsProviderInit sync.Once
	decisionMetricsInit sync.Once
	engineInit          sync.Once
	identityInit        sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// MetricsProvider returns the metrics provider, or nil when metrics are
// disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// DecisionMetrics returns the decision metrics recorder. A no-op
// implementation is returned when metrics are disabled.
func (c *Container) DecisionMetrics() (metrics.DecisionMetrics, error) {
	var err error
	c.decisionMetricsInit.Do(func() {
		c.decisionMetrics, err = c.initDecisionMetrics()
		if err != nil {
			c.initErrors["decisionMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["decisionMetrics"]; exists {
		return nil, storedErr
	}
	return c.decisionMetrics, nil
}

// Engine returns the policy evaluation engine, with rules loaded from the
// configured rule set and decision metrics instrumentation applied.
func (c *Container) Engine() (guardUseCase.Engine, error) {
	var err error
	c.engineInit.Do(func() {
		c.engine, err = c.initEngine()
		if err != nil {
			c.initErrors["engine"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["engine"]; exists {
		return nil, storedErr
	}
	return c.engine, nil
}

// IdentityProvider returns the subject resolution provider.
func (c *Container) IdentityProvider() identity.Provider {
	c.identityInit.Do(func() {
		c.identityProvider = identity.NewHeaderProvider()
	})
	return c.identityProvider
}

// HTTPServer returns the main HTTP server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics
// are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown gracefully releases every initialized component.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDecisionMetrics builds the decision metrics recorder.
func (c *Container) initDecisionMetrics() (metrics.DecisionMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpDecisionMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	return metrics.NewDecisionMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initEngine builds the policy engine, loads the configured rule set, and
// wraps the engine with metrics instrumentation.
func (c *Container) initEngine() (guardUseCase.Engine, error) {
	logger := c.Logger()

	engine := guardUseCase.NewEngine(
		guardUseCase.WithLogger(logger),
		guardUseCase.WithDefaultCacheTTL(c.config.GuardCacheTTL),
		guardUseCase.WithAuditCapacity(c.config.GuardAuditCapacity),
	)

	if c.config.GuardRulesPath != "" {
		rules, err := ruleset.Load(c.config.GuardRulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule set: %w", err)
		}
		for _, rule := range rules {
			if err := engine.RegisterRule(rule); err != nil {
				return nil, fmt.Errorf("failed to register rule %q: %w", rule.ResourceKey, err)
			}
		}
		logger.Info("rule set loaded",
			slog.String("path", c.config.GuardRulesPath),
			slog.Int("rule_count", len(rules)))
	} else {
		logger.Warn("no rule set configured, every resource allows by default")
	}

	decisionMetrics, err := c.DecisionMetrics()
	if err != nil {
		return nil, err
	}
	return guardUseCase.NewEngineWithMetrics(engine, decisionMetrics), nil
}

// initHTTPServer builds the main HTTP server with its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	return http.NewServer(
		c.config,
		engine,
		c.IdentityProvider(),
		metricsProvider,
		c.Logger(),
	), nil
}
