// Seika - Focus Session Server
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
	"github.com/seika-app/seika-server/internal/api"
	"github.com/seika-app/seika-server/internal/auth"
	"github.com/seika-app/seika-server/internal/config"
	"github.com/seika-app/seika-server/internal/middleware"
	"github.com/seika-app/seika-server/internal/reward"
	"github.com/seika-app/seika-server/internal/scheduler"
	"github.com/seika-app/seika-server/internal/session"
	"github.com/seika-app/seika-server/internal/store"
	"github.com/seika-app/seika-server/internal/ws"
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

	// Initialize services.
	verifier := auth.NewVerifier(cfg.JWTSecret)
	rewardSvc := reward.NewService(repo)
	sessionSvc := session.NewService(repo, rewardSvc)
	sched := scheduler.New(repo, cfg.SchedulerInterval)
	monitor := session.NewMonitor(sessionSvc, sched, cfg.GracePeriod)
	sched.RegisterHandler(session.TaskKindReconcile, monitor.Reconcile)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo)
	wsHandler := ws.NewHandler(verifier, sessionSvc, monitor, ws.NewManager(), cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Authenticated REST routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		apiHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint authenticates itself (token query param or header).
	r.Get("/ws/pomo", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout, websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Start the delayed-task worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	slog.Info("Scheduler started", "interval", cfg.SchedulerInterval, "grace_period", cfg.GracePeriod)

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
