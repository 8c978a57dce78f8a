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

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/thth13/pomo-cowork-sub000/pkg/otelhelper"
)

func main() {
	godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx := context.Background()

	otelShutdown, err := otelhelper.Init(ctx, "sync-service")
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	cfg := loadConfig()
	slog.Info("Starting sync service",
		"port", cfg.Port,
		"store", cfg.StoreBaseURL,
		"reconcile_interval", cfg.ReconcileInterval,
		"grace_window", cfg.GraceWindow,
	)

	store := NewHTTPStore(cfg.StoreBaseURL)
	hub := NewHub(cfg, log, store, newMetrics())

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go hub.Run(hubCtx)
	go hub.runTimers(hubCtx)

	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.handleWS)
	router.HandleFunc("/healthz", hub.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/admin/reset", hub.handleReset).Methods(http.MethodPost)
	router.HandleFunc("/admin/debug", hub.handleDebug).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("Sync service ready", "addr", server.Addr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down sync service")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancelHub()
	slog.Info("Sync service shutdown complete")
}
