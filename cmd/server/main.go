// Foundersync - AI founding team simulation server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/api"
	"github.com/ashureev/foundersync/internal/config"
	"github.com/ashureev/foundersync/internal/docs"
	"github.com/ashureev/foundersync/internal/identity"
	"github.com/ashureev/foundersync/internal/llm"
	"github.com/ashureev/foundersync/internal/middleware"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "mock_model", cfg.Model.UseMock)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	invoker, err := llm.NewInvoker(context.Background(), cfg.Model)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	svc, err := agent.NewService(invoker, agent.Config{
		ChunkDelay:         cfg.Chat.ChunkDelay,
		HistoryLimit:       cfg.Chat.HistoryLimit,
		MaxRequestBodySize: cfg.Chat.MaxRequestBodySize,
		RateLimitRequests:  cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:    cfg.RateLimit.WindowDuration,
	})
	if err != nil {
		slog.Error("Failed to initialize agent service", "error", err)
		os.Exit(1)
	}

	topics, err := docs.LoadTopics(cfg.Docs.TopicsFile)
	if err != nil {
		slog.Error("Failed to load documentation topics", "error", err)
		os.Exit(1)
	}
	generator, err := docs.NewGenerator(svc, repo, topics, docs.Options{
		Concurrency:  cfg.Docs.Concurrency,
		HistoryLimit: cfg.Chat.HistoryLimit,
	})
	if err != nil {
		slog.Error("Failed to initialize documentation generator", "error", err)
		os.Exit(1)
	}
	slog.Info("Documentation generator ready", "topics", len(topics), "concurrency", cfg.Docs.Concurrency)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg.Model.UseMock)
	healthHandler := api.NewHealthHandler(baseHandler)
	simulationHandler := api.NewSimulationHandler(baseHandler)
	docsHandler := api.NewDocsHandler(baseHandler, generator)

	agentHandler := agent.NewHandler(svc, repo, cfg.AllowedOrigins())
	defer agentHandler.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, identity.Options{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AllowAnonymous: cfg.IsDevelopment(),
		IsDev:          cfg.IsDevelopment(),
	}))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Routes below check identity themselves.
	simulationHandler.RegisterRoutes(r)
	docsHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)

	// Create server.
	// SSE and WebSocket chat hold connections open, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(agentHandler.Close)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
