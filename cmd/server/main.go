// AIOps Platform - chat-driven infrastructure provisioning server
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
	"github.com/robfig/cron/v3"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/api"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/chat"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/config"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/identity"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/ledger"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/middleware"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/notify"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/planner"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/provision"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/transcript"
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

	transcriptLog, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	})
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcriptLog.Close(); closeErr != nil {
			slog.Error("Failed to flush transcripts", "error", closeErr)
		}
	}()

	// Initialize services.
	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	registry := chat.NewRegistry()
	hub := chat.NewHub(repo)
	ldg := ledger.New(repo)
	dispatcher := notify.NewDispatcher(registry, repo, cfg.RetryWindow)
	defer dispatcher.Close()

	var extractor planner.IntentExtractor
	if cfg.OpenAIKey != "" {
		extractor = planner.NewOpenAIExtractor(cfg.OpenAIKey)
		slog.Info("Intent extraction: model-backed with heuristic fallback")
	} else {
		extractor = planner.NewHeuristicExtractor()
		slog.Info("Intent extraction: heuristics only (OPENAI_API_KEY not set)")
	}

	submitter := provision.NewService(repo, cfg.ProvisionerURL, cfg.APIToken)
	guided := planner.NewGuided(repo, submitter, extractor)
	router := chat.NewRouter(registry, hub, guided, dispatcher, transcriptLog, cfg.ChoicePolicy)

	// Replay queued notifications when a user comes online.
	registry.OnRegister(func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dispatcher.FlushPending(ctx, userID)
	})
	registry.OnUnregister(dispatcher.DropConnection)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, ldg, registry)
	webhookHandler := provision.NewWebhookHandler(repo, dispatcher, registry, cfg.APIToken)
	wsHandler := chat.NewWebSocketHandler(registry, router, verifier, repo, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	// Public routes.
	r.Get("/chat/health", apiHandler.HandleChatHealth)

	// Pipeline webhook routes (service-token auth).
	webhookHandler.RegisterRoutes(r)

	// Authenticated API routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier, repo))
		apiHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint (authenticates its own handshake).
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Background maintenance.
	cr := cron.New()
	if _, err := cr.AddFunc("@every 5m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		dispatcher.ExpireSweep(ctx)
		if n, cleanupErr := repo.CleanupStaleChatSessions(ctx, cfg.SessionTTL); cleanupErr != nil {
			slog.Error("Stale session cleanup failed", "error", cleanupErr)
		} else if n > 0 {
			slog.Info("Stale chat sessions removed", "count", n)
		}
	}); err != nil {
		slog.Error("Failed to schedule maintenance job", "error", err)
		os.Exit(1)
	}
	cr.Start()
	defer cr.Stop()

	// Create server. WriteTimeout stays 0 so WebSocket connections are not
	// cut off mid-session.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
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

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" || cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
