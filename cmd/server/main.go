// SpookyGPT - Halloween chat relay server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/spookylabs/spookygpt/internal/admin"
	"github.com/spookylabs/spookygpt/internal/characters"
	"github.com/spookylabs/spookygpt/internal/chat"
	"github.com/spookylabs/spookygpt/internal/config"
	"github.com/spookylabs/spookygpt/internal/contextcache"
	"github.com/spookylabs/spookygpt/internal/cooldown"
	"github.com/spookylabs/spookygpt/internal/identity"
	"github.com/spookylabs/spookygpt/internal/led"
	"github.com/spookylabs/spookygpt/internal/ledger"
	"github.com/spookylabs/spookygpt/internal/llm"
	"github.com/spookylabs/spookygpt/internal/middleware"
	"github.com/spookylabs/spookygpt/internal/store"
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

	slog.Info("Starting server",
		"port", cfg.Port,
		"model", cfg.OllamaModel,
		"led_mode", cfg.LedMode,
		"dev", cfg.IsDevelopment(),
	)

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

	// Initialize services.
	registry := characters.NewRegistry()
	contexts := contextcache.New(cfg.ContextWindow, cfg.DeviceActiveWindow)
	gate := cooldown.New(cfg.CooldownThreshold, cfg.CooldownDuration)
	ldg := ledger.New(cfg.RecentLogCap)

	flashCmd := led.ColorCommand(cfg.LedColor[0], cfg.LedColor[1], cfg.LedColor[2],
		time.Duration(cfg.LedFlashMs)*time.Millisecond)
	bridge := led.New(string(cfg.LedMode), flashCmd)

	backend := llm.NewClient(cfg.OllamaURL, cfg.OllamaModel, cfg.GenerateTimeout, logger)

	var paused atomic.Bool
	chatService := chat.NewService(registry, contexts, gate, ldg, bridge, backend, &paused, logger)
	adminGate := admin.NewGate(cfg.AdminPassword, cfg.AdminSessionTTL, &paused)

	// Initialize handlers.
	chatHandler := chat.NewHandler(chatService, registry, ldg, repo, logger,
		cfg.MaxActiveDevices, cfg.DeviceActiveWindow)
	adminHandler := admin.NewHandler(adminGate, ldg, bridge, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		r.Post("/api/chat", chatHandler.HandleChat)
		r.Get("/api/characters", chatHandler.HandleCharacters)
		r.Get("/api/speech-config", chatHandler.HandleSpeechConfig)
		r.Get("/api/stats", chatHandler.HandleStats)
	})

	// Admin routes.
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(adminHandler.RequireAuth)
			r.Post("/logout", adminHandler.HandleLogout)
			r.Get("/stats", adminHandler.HandleStats)
			r.Get("/queries", adminHandler.HandleQueries)
			r.Post("/pause", adminHandler.HandlePause)
			r.Post("/unpause", adminHandler.HandleUnpause)
			r.Get("/status", adminHandler.HandleStatus)
			r.Post("/status", adminHandler.HandleStatus)
			r.Get("/led/status", adminHandler.HandleLedStatus)
			r.Get("/activity/ws", adminHandler.HandleActivityWS)
		})
	})

	// Create server.
	// Note: chat responses stream chunk by chunk, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start device prune worker; trim the cooldown map on the same sweep.
	store.StartPruneWorker(ctx, repo, cfg.DeviceTTL, func() {
		if removed := gate.Prune(cfg.DeviceTTL); removed > 0 {
			slog.Info("Pruned idle cooldown state", "removed", removed)
		}
	})
	slog.Info("Prune worker started", "device_ttl", cfg.DeviceTTL)

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
