// Playdo - AI Python Tutor API Server
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

	"github.com/joho/godotenv"

	"github.com/playdo-labs/playdo/internal/api"
	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/bridge"
	"github.com/playdo-labs/playdo/internal/chat"
	"github.com/playdo-labs/playdo/internal/config"
	"github.com/playdo-labs/playdo/internal/middleware"
	"github.com/playdo-labs/playdo/internal/store"
	"github.com/playdo-labs/playdo/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.ValidateServer(); err != nil {
		slog.Error("Invalid server configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "testing", cfg.Testing)

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

	responder, err := bridge.New(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize response bridge", "error", err)
		os.Exit(1)
	}
	slog.Info("Response bridge initialized", "provider", responder.Provider())

	// Initialize services.
	chatService := chat.NewService(repo, responder, logger)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	userService := auth.NewUserService(repo, tokens, logger)

	// Setup router.
	handler := api.NewRouter(api.RouterConfig{
		Chat:           chatService,
		Users:          userService,
		Tokens:         tokens,
		DB:             repo,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SendLimiter:    middleware.NewRateLimiter(cfg.SendRatePerMinute, cfg.SendRatePerMinute),
		Frontend:       web.SPAHandler(),
		Logger:         logger,
	})

	// Create server. Tutor replies can take a while, so WriteTimeout leaves
	// room for a full upstream call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

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
