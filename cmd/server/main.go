// Whack-a-Mole real-time game server.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/whackamole/internal/api"
	"github.com/ashureev/whackamole/internal/config"
	"github.com/ashureev/whackamole/internal/game"
	"github.com/ashureev/whackamole/internal/middleware"
	"github.com/ashureev/whackamole/internal/store"
	"github.com/ashureev/whackamole/internal/ws"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected")

	profiles, err := game.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		slog.Error("Failed to load difficulty presets", "error", err)
		os.Exit(1)
	}
	slog.Info("Difficulty presets loaded", "presets", len(profiles))

	// Initialize services.
	rounds := game.NewRegistry()
	hub := ws.NewHub()

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, rounds, hub, profiles)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := ws.NewHandler(rounds, hub, profiles, repo, cfg.FrontendURL, cfg.IsDevelopment())
	wsHandler.SetTick(cfg.RoundTick)

	corsOrigin := cfg.FrontendURL
	if cfg.IsDevelopment() || corsOrigin == "" {
		corsOrigin = "*"
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(corsOrigin))

	// Public routes.
	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/game", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections stay open for whole games, so no
	// write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the janitor for rounds whose owners never cleaned up.
	game.StartJanitor(ctx, rounds, cfg.RoundGrace)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// End every live round, then drop the clients.
	rounds.StopAll()
	hub.CloseAll()

	slog.Info("Server stopped successfully")
}
