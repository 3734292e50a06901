package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facefind/internal/api"
	"github.com/your-org/facefind/internal/api/handlers"
	"github.com/your-org/facefind/internal/api/ws"
	"github.com/your-org/facefind/internal/app"
	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/observability"
	"github.com/your-org/facefind/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facefind API service", "port", cfg.Server.Port, "db", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Vision: true, LocalQueue: true})
	if err != nil {
		slog.Error("init app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	checks := map[string]handlers.Pinger{
		"store":   a.Store,
		"objects": a.Objects,
	}

	if a.Producer != nil {
		// Every API replica needs its own copy of each notification.
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create notification consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		name := "api-" + uuid.NewString()[:8]
		if err := consumer.ConsumeNotifications(ctx, name, hub.Notify); err != nil {
			slog.Warn("start notification consumer", "error", err)
		}
		checks["nats"] = handlers.PingFunc(func(context.Context) error { return a.Producer.Ping() })
	} else {
		// Single node: extraction runs in this process.
		a.Local.Subscribe(hub.Notify)
		a.Local.ConsumeFiles(ctx, a.Service.ProcessFile, cfg.Vision.WorkerCount)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Service:        a.Service,
		Hub:            hub,
		Checks:         checks,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
