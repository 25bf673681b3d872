package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/bootstrap"
	"github.com/brlaw-ai/evidence-pipeline/internal/config"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("evidence-pipeline-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.Metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSRequestSubject)
	err = app.Queue.SubscribePassRequests(ctx, func(handlerCtx context.Context, req domain.PassRequest) error {
		passCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		if len(req.Indices) == 0 {
			req.Indices = cfg.OpenSearchIndices
		}
		if len(req.Collections) == 0 {
			req.Collections = cfg.QdrantCollections
		}
		result, err := app.Runner.RunPass(passCtx, req)
		if err != nil {
			return err
		}
		return app.Queue.PublishPassResult(passCtx, *result)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
