package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"flowhook/backend/internal/action"
	"flowhook/backend/internal/api"
	"flowhook/backend/internal/auth"
	"flowhook/backend/internal/consumer"
	"flowhook/backend/internal/engine"
	"flowhook/backend/internal/filter"
	"flowhook/backend/internal/mcp"
	"flowhook/backend/internal/observability"
	"flowhook/backend/internal/repository"
	flowtls "flowhook/backend/internal/tls"
	"flowhook/backend/internal/trigger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting workflow service",
		"environment", cfg.Environment,
		"kafka_enabled", cfg.Kafka.Enable,
	)

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return err
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool); err != nil {
		logger.Error("Schema migration failed", "error", err)
		return err
	}
	logger.Info("Database connected")

	store := repository.NewPostgresStore(dbPool)

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("Failed to register metrics", "error", err)
		return err
	}

	// Wire the engine: filters, trigger matching, action dispatch
	filters := filter.NewEngine(logger)
	matcher := trigger.NewMatcher(store, store, filters, nil, logger)
	dispatcher := action.NewDispatcher(store, logger)
	action.RegisterAll(dispatcher, action.NewTaskHandlers(store))

	eng := engine.NewEngine(store, matcher, dispatcher, filters,
		cfg.Engine.MaxConcurrentRuns, logger,
		engine.WithMetrics(metrics),
		engine.WithDefaultDelay(time.Duration(cfg.Engine.DefaultDelayMs)*time.Millisecond),
	)
	logger.Info("Workflow engine initialized", "max_concurrent_runs", cfg.Engine.MaxConcurrentRuns)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ProblemDetailsHandler(logger)

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("flowhook"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return err
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers
	apiServer := api.NewServer(store, eng, version, logger)
	apiServer.RegisterRoutes(e, echo.WrapMiddleware(authz.RequireAuth))
	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(store, eng)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	// Start the CDC consumer when Kafka is configured
	var cdcConsumer *consumer.Consumer
	if cfg.Kafka.Enable {
		topics, err := consumer.TopicsForTriggers(ctx, store, cfg.Kafka.TopicPrefix)
		if err != nil {
			logger.Error("Failed to resolve CDC topics", "error", err)
			return err
		}
		if len(topics) > 0 {
			cdcConsumer = consumer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics, eng, store, metrics, logger)
			if err := cdcConsumer.Start(ctx); err != nil {
				logger.Error("Failed to start CDC consumer", "error", err)
				return err
			}
		} else {
			logger.Warn("Kafka enabled but no active change-capture triggers; consumer not started")
		}
	}

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if len(cfg.TLS.Hostnames) > 0 {
				generated, err := flowtls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
				if err != nil {
					logger.Error("failed to generate self-signed cert", "error", err)
				} else if generated {
					logger.Info("Generated self-signed certificate", "cert", cfg.TLS.CertFile)
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if cdcConsumer != nil {
			if err := cdcConsumer.Stop(); err != nil {
				logger.Error("CDC consumer shutdown error", "error", err)
			}
		}
		// let in-flight runs reach a terminal state
		eng.Wait()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}
