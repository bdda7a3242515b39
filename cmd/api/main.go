package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/akarpov/ragindex/internal/adapters/http"
	"github.com/akarpov/ragindex/internal/bootstrap"
	"github.com/akarpov/ragindex/internal/config"
	"github.com/akarpov/ragindex/internal/observability/logging"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

const serviceName = "ragindex-api"

func main() {
	cfg := config.Load()
	log := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Instruments{
		Service: serviceName,
		HTTP:    httpMetrics,
	})
	if err != nil {
		log.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.StatusUC,
		app.SearchUC,
		app.DeleteUC,
		app.StatsUC,
		httpMetrics,
		serviceName,
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("api_shutdown_error", "error", err)
	}
}
