package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarpov/ragindex/internal/bootstrap"
	"github.com/akarpov/ragindex/internal/config"
	"github.com/akarpov/ragindex/internal/core/ports"
	"github.com/akarpov/ragindex/internal/observability/logging"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

const serviceName = "ragindex-worker"

const processTimeout = 15 * time.Minute

func main() {
	cfg := config.Load()
	log := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Instruments{
		Service: serviceName,
		Worker:  workerMetrics,
	})
	if err != nil {
		log.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		log.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker_metrics_error", "error", err)
		}
	}()

	log.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeProcessJobs(ctx, func(handlerCtx context.Context, job ports.ProcessJob) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		processErr := app.ProcessUC.ProcessByID(processCtx, job.DocumentID)
		workerMetrics.FinishDocument(serviceName, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
